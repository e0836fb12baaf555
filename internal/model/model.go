// Package model holds the format-agnostic configuration model: the raw
// ordered node mapping produced by the config loader and consumed by the
// template expander, and the concrete NodeSpec the graph builder accepts.
package model

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// KV is a single field of an ordered mapping.
type KV struct {
	Key string
	Val any
}

// Dict is an ordered field mapping. Config decoding preserves the
// on-disk order of keys, which downstream passes rely on for
// deterministic node numbering.
type Dict []KV

// Get returns the value for key and whether it was present.
func (d Dict) Get(key string) (any, bool) {
	for _, kv := range d {
		if kv.Key == key {
			return kv.Val, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Without returns a copy of the dict with the named keys removed.
func (d Dict) Without(keys ...string) Dict {
	out := make(Dict, 0, len(d))
	for _, kv := range d {
		skip := false
		for _, k := range keys {
			if kv.Key == k {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}

// RawNode is one not-yet-validated node definition.
type RawNode struct {
	Name   string
	Fields Dict
}

// Mapping is the ordered collection of raw node definitions for one run.
type Mapping []RawNode

// Get returns the raw node with the given name.
func (m Mapping) Get(name string) (RawNode, bool) {
	for _, n := range m {
		if n.Name == name {
			return n, true
		}
	}
	return RawNode{}, false
}

// NodeSpec is a validated, immutable node definition. Name is the
// graph-unique key.
type NodeSpec struct {
	Name   string
	Type   string
	Input  string   // single declared input, empty if absent
	Inputs []string // multi-input form, nil if absent
	Params map[string]cty.Value

	// Def is the zero-based definition index of the node within the
	// expanded mapping, used to break topological-order ties.
	Def int
}

// InputNames returns the declared input references, regardless of which
// of the two forms the config used.
func (n *NodeSpec) InputNames() []string {
	if len(n.Inputs) > 0 {
		return n.Inputs
	}
	if n.Input != "" {
		return []string{n.Input}
	}
	return nil
}

// ParseNode converts a raw node definition into a NodeSpec. It validates
// only structure (a type tag, the shape of input/inputs); semantic
// validation against the node-kind registry happens in the graph builder.
func ParseNode(raw RawNode, def int) (*NodeSpec, error) {
	typeVal, ok := raw.Fields.Get("type")
	if !ok {
		return nil, fmt.Errorf("node %q: missing required field \"type\"", raw.Name)
	}
	typeStr, ok := typeVal.(string)
	if !ok {
		return nil, fmt.Errorf("node %q: field \"type\" must be a string, got %T", raw.Name, typeVal)
	}

	spec := &NodeSpec{
		Name:   raw.Name,
		Type:   typeStr,
		Params: make(map[string]cty.Value),
		Def:    def,
	}

	if v, ok := raw.Fields.Get("input"); ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("node %q: field \"input\" must be a string, got %T", raw.Name, v)
		}
		spec.Input = s
	}
	if v, ok := raw.Fields.Get("inputs"); ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("node %q: field \"inputs\" must be a sequence, got %T", raw.Name, v)
		}
		for i, ele := range list {
			s, ok := ele.(string)
			if !ok {
				return nil, fmt.Errorf("node %q: inputs[%d] must be a string, got %T", raw.Name, i, ele)
			}
			spec.Inputs = append(spec.Inputs, s)
		}
	}
	if spec.Input != "" && len(spec.Inputs) > 0 {
		return nil, fmt.Errorf("node %q: fields \"input\" and \"inputs\" are mutually exclusive", raw.Name)
	}

	for _, kv := range raw.Fields.Without("type", "input", "inputs") {
		val, err := FromGo(kv.Val)
		if err != nil {
			return nil, fmt.Errorf("node %q: field %q: %w", raw.Name, kv.Key, err)
		}
		spec.Params[kv.Key] = val
	}
	return spec, nil
}
