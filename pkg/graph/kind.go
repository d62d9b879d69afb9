package graph

import (
	"fmt"
	"strings"
)

// Kind is the closed set of operator categories the compiler passes reason
// about. Everything that is not boundary, constant, variable, call or
// control-flow machinery is a plain [KindOp]; its concrete operator type
// lives in [Node.Type].
type Kind int

const (
	// KindOp is a regular compute operator (Add, MatMul, Conv2D, ...).
	KindOp Kind = iota
	// KindData is a graph input boundary node.
	KindData
	// KindNetOutput is the graph output boundary node.
	KindNetOutput
	// KindConst is a compile-time constant.
	KindConst
	// KindVariable is a stateful variable; its output is a reference.
	KindVariable
	// KindPartitionedCall invokes a single subgraph as a callable unit.
	KindPartitionedCall
	// KindIf selects between two branch subgraphs.
	KindIf
	// KindCase selects one of N branch subgraphs.
	KindCase
	// KindWhile iterates a body subgraph under a condition subgraph.
	KindWhile
	// KindStreamActive activates a stream; it carries no data.
	KindStreamActive
	// KindStreamSwitch routes control between streams; it carries no data.
	KindStreamSwitch
	// KindNoOp only orders its neighbours through control edges.
	KindNoOp
)

type capability struct {
	name        string
	subgraphs   bool
	controlFlow bool
	noTiling    bool
	constant    bool
	controlOnly bool
	ref         bool
}

var capabilities = [...]capability{
	KindOp:              {name: "Op", noTiling: true},
	KindData:            {name: "Data"},
	KindNetOutput:       {name: "NetOutput"},
	KindConst:           {name: "Const", constant: true},
	KindVariable:        {name: "Variable", ref: true},
	KindPartitionedCall: {name: "PartitionedCall", subgraphs: true},
	KindIf:              {name: "If", subgraphs: true, controlFlow: true},
	KindCase:            {name: "Case", subgraphs: true, controlFlow: true},
	KindWhile:           {name: "While", subgraphs: true, controlFlow: true},
	KindStreamActive:    {name: "StreamActive", controlFlow: true, controlOnly: true},
	KindStreamSwitch:    {name: "StreamSwitch", controlFlow: true, controlOnly: true},
	KindNoOp:            {name: "NoOp", controlOnly: true},
}

func (k Kind) caps() capability {
	if k < 0 || int(k) >= len(capabilities) {
		return capability{name: fmt.Sprintf("Kind(%d)", int(k))}
	}
	return capabilities[k]
}

// String returns the canonical kind name, e.g. "PartitionedCall".
func (k Kind) String() string { return k.caps().name }

// HasSubgraphs reports whether nodes of this kind own subgraph instances.
func (k Kind) HasSubgraphs() bool { return k.caps().subgraphs }

// IsControlFlow reports whether the kind is a control-flow operator.
func (k Kind) IsControlFlow() bool { return k.caps().controlFlow }

// IsNoTilingEligible reports whether the kind can ever run in no-tiling mode.
// The kernel still has to advertise support for a concrete node.
func (k Kind) IsNoTilingEligible() bool { return k.caps().noTiling }

// IsConstant reports whether the kind produces a compile-time constant.
func (k Kind) IsConstant() bool { return k.caps().constant }

// IsControlOnly reports whether the kind carries no data and exists only
// for ordering or stream control.
func (k Kind) IsControlOnly() bool { return k.caps().controlOnly }

// IsRef reports whether the kind outputs a reference to mutable state.
func (k Kind) IsRef() bool { return k.caps().ref }

// IsBoundary reports whether the kind is a Data or NetOutput boundary node.
func (k Kind) IsBoundary() bool { return k == KindData || k == KindNetOutput }

// ParseKind returns the kind named s (case-insensitive).
func ParseKind(s string) (Kind, bool) {
	for k, c := range capabilities {
		if strings.EqualFold(c.name, s) {
			return Kind(k), true
		}
	}
	return KindOp, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(b))
	}
	*k = v
	return nil
}
