package graph

// Attribute names shared between the partitioner, the unfolder and the
// downstream passes that consume their output.
const (
	AttrUnknownShape            = "_is_unknown_shape"
	AttrDynamicShapePartitioned = "_dynamic_shape_partitioned"
	AttrOwnerGraphIsUnknown     = "_owner_graph_is_unknown"
	AttrForceUnknownShape       = "_force_unknown_shape"
	AttrOpNoTiling              = "_op_no_tiling"
	AttrTensorNoTiling          = "_tensor_no_tiling"
	AttrParentNodeIndex         = "_parent_node_index"
	AttrStageLevel              = "_stage_level"
	AttrControlFlowGroup        = "_controlflow_group"
	AttrEngine                  = "_engine"
	AttrSeparatelyScheduled     = "_separately_scheduled"
)

// EngineHostCPU is the engine name of operators that always run on the host
// CPU. Such operators are scheduled dynamically.
const EngineHostCPU = "DNN_VM_HOST_CPU"

// Attrs stores typed attributes on nodes, tensors and graphs. Values decoded
// from JSON arrive as float64, so the typed getters accept every numeric
// representation.
type Attrs map[string]any

// Has reports whether key is set.
func (a Attrs) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Bool returns the boolean stored under key.
func (a Attrs) Bool(key string) (bool, bool) {
	v, ok := a[key].(bool)
	return v, ok
}

// Int returns the integer stored under key.
func (a Attrs) Int(key string) (int64, bool) {
	switch v := a[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// String returns the string stored under key.
func (a Attrs) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// IsTrue reports whether key holds the boolean true.
func (a Attrs) IsTrue(key string) bool {
	v, _ := a.Bool(key)
	return v
}

// Ints returns the integer list stored under key. Lists decoded from JSON
// arrive as []any.
func (a Attrs) Ints(key string) ([]int64, bool) {
	switch v := a[key].(type) {
	case []int64:
		return v, true
	case []int:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out, true
	case []any:
		out := make([]int64, 0, len(v))
		for _, x := range v {
			n, ok := Attrs{"": x}.Int("")
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}
