package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Pass hooks
	p := NoopPassHooks{}
	p.OnPassStart(ctx, "partition", "root")
	p.OnPassComplete(ctx, "partition", "root", time.Second, nil)
	p.OnClusterMerge(ctx, "root", "KNOWN_SHAPE#1(2)", "KNOWN_SHAPE#2(1)")

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "graph")
	c.OnCacheMiss(ctx, "graph")
	c.OnCacheSet(ctx, "graph", 1024)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pass().(NoopPassHooks); !ok {
		t.Error("Pass() should return NoopPassHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}

	customPass := &testPassHooks{}
	SetPassHooks(customPass)
	if Pass() != customPass {
		t.Error("SetPassHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	Reset()
	if _, ok := Pass().(NoopPassHooks); !ok {
		t.Error("Reset() should restore NoopPassHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPassHooks{}
	SetPassHooks(custom)
	SetPassHooks(nil)

	if Pass() != custom {
		t.Error("SetPassHooks(nil) should be ignored")
	}

	Reset()
}

type testPassHooks struct{ NoopPassHooks }
type testCacheHooks struct{ NoopCacheHooks }
