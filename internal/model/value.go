package model

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// FromGo converts a decoded configuration value into a cty.Value. Mappings
// become objects, sequences become tuples, scalars map onto the matching
// primitive type.
func FromGo(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, ele := range val {
			conv, err := FromGo(ele)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = conv
		}
		return cty.TupleVal(elems), nil
	case Dict:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for _, kv := range val {
			conv, err := FromGo(kv.Val)
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", kv.Key, err)
			}
			attrs[kv.Key] = conv
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}

// StringParam reads a string-convertible parameter.
func (n *NodeSpec) StringParam(key string) (string, bool, error) {
	v, ok := n.Params[key]
	if !ok {
		return "", false, nil
	}
	conv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", true, fmt.Errorf("node %q: parameter %q: %w", n.Name, key, err)
	}
	return conv.AsString(), true, nil
}

// BoolParam reads a bool parameter, returning def when absent.
func (n *NodeSpec) BoolParam(key string, def bool) (bool, error) {
	v, ok := n.Params[key]
	if !ok {
		return def, nil
	}
	conv, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("node %q: parameter %q: %w", n.Name, key, err)
	}
	return conv.True(), nil
}

// IntParam reads an integer parameter.
func (n *NodeSpec) IntParam(key string) (int64, bool, error) {
	v, ok := n.Params[key]
	if !ok {
		return 0, false, nil
	}
	var out int64
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return 0, true, fmt.Errorf("node %q: parameter %q: %w", n.Name, key, err)
	}
	return out, true, nil
}

// StringListParam reads a list-of-strings parameter.
func (n *NodeSpec) StringListParam(key string) ([]string, bool, error) {
	v, ok := n.Params[key]
	if !ok {
		return nil, false, nil
	}
	if !v.CanIterateElements() {
		return nil, true, fmt.Errorf("node %q: parameter %q: expected a sequence", n.Name, key)
	}
	var out []string
	for it := v.ElementIterator(); it.Next(); {
		_, ele := it.Element()
		conv, err := convert.Convert(ele, cty.String)
		if err != nil {
			return nil, true, fmt.Errorf("node %q: parameter %q: %w", n.Name, key, err)
		}
		out = append(out, conv.AsString())
	}
	return out, true, nil
}
