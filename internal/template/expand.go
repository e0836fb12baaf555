// Package template rewrites templated node groups into concrete node
// definitions before the graph is built. Two forms are handled: the
// dynamic_template node (a nested node mapping with {placeholder} tokens
// plus a list of per-instance bindings) and the combine_sort_dedup_output
// convenience node, which unfolds into its four primitive nodes.
//
// Substitution is a token-scanning pass over the structured field tree,
// not generic text templating: a string that consists of exactly one
// bound token is replaced by the bound value (of any type), tokens inside
// larger strings require string-typed bindings, and any token left
// unresolved after binding is a configuration error.
package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"powerplaylists/internal/ctxlog"
	"powerplaylists/internal/model"
)

const (
	typeDynamicTemplate = "dynamic_template"
	typeCompoundOutput  = "combine_sort_dedup_output"
)

// tokenRe matches a single {placeholder} occurrence.
var tokenRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// ExpansionError is a configuration error raised while expanding a
// template node. Instance is the zero-based instance index, or -1 when
// the error is not tied to one instance. Field is the path of the
// offending field inside the template body, when known.
type ExpansionError struct {
	Node     string
	Instance int
	Field    string
	Reason   string
}

func (e *ExpansionError) Error() string {
	msg := fmt.Sprintf("template node %q", e.Node)
	if e.Instance >= 0 {
		msg += fmt.Sprintf(", instance %d", e.Instance)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(", field %q", e.Field)
	}
	return msg + ": " + e.Reason
}

// Expand rewrites every template node in the mapping into concrete nodes,
// preserving the relative order of definitions (an expanded group takes
// the position of the node that declared it, instance-major). The result
// contains no dynamic_template or combine_sort_dedup_output nodes and has
// globally unique names.
func Expand(ctx context.Context, mapping model.Mapping) (model.Mapping, error) {
	logger := ctxlog.FromContext(ctx)

	var out model.Mapping
	for _, raw := range mapping {
		typeTag, _ := raw.Fields.Get("type")
		switch typeTag {
		case typeDynamicTemplate:
			expanded, err := expandDynamicTemplate(raw)
			if err != nil {
				return nil, err
			}
			logger.Debug("Expanded dynamic template.", "node", raw.Name, "produced", len(expanded))
			out = append(out, expanded...)
		case typeCompoundOutput:
			expanded, err := expandCompound(raw)
			if err != nil {
				return nil, err
			}
			logger.Debug("Expanded compound output node.", "node", raw.Name, "produced", len(expanded))
			out = append(out, expanded...)
		default:
			out = append(out, raw)
		}
	}

	seen := make(map[string]struct{}, len(out))
	for _, raw := range out {
		if _, dup := seen[raw.Name]; dup {
			return nil, &ExpansionError{Node: raw.Name, Instance: -1,
				Reason: "rendered node name collides with another definition"}
		}
		seen[raw.Name] = struct{}{}
	}
	return out, nil
}

func expandDynamicTemplate(raw model.RawNode) (model.Mapping, error) {
	body, err := templateBody(raw)
	if err != nil {
		return nil, err
	}
	instances, err := templateInstances(raw)
	if err != nil {
		return nil, err
	}

	var out model.Mapping
	for idx, bindings := range instances {
		for _, tmplNode := range body {
			rendered, err := renderNode(raw.Name, idx, tmplNode, bindings)
			if err != nil {
				return nil, err
			}
			// A rendered compound node unfolds like a top-level one, so
			// templates can stamp out a full output group per instance.
			if t, _ := rendered.Fields.Get("type"); t == typeCompoundOutput {
				unfolded, err := expandCompound(rendered)
				if err != nil {
					return nil, err
				}
				out = append(out, unfolded...)
				continue
			}
			out = append(out, rendered)
		}
	}
	return out, nil
}

// templateBody extracts and sanity-checks the nested node mapping.
func templateBody(raw model.RawNode) (model.Mapping, error) {
	v, ok := raw.Fields.Get("template")
	if !ok {
		return nil, &ExpansionError{Node: raw.Name, Instance: -1, Reason: "missing required field \"template\""}
	}
	dict, ok := v.(model.Dict)
	if !ok {
		return nil, &ExpansionError{Node: raw.Name, Instance: -1,
			Reason: fmt.Sprintf("field \"template\" must be a mapping, got %T", v)}
	}
	var body model.Mapping
	for _, kv := range dict {
		fields, ok := kv.Val.(model.Dict)
		if !ok {
			return nil, &ExpansionError{Node: raw.Name, Instance: -1, Field: kv.Key,
				Reason: fmt.Sprintf("template entry must be a mapping, got %T", kv.Val)}
		}
		if t, _ := fields.Get("type"); t == typeDynamicTemplate {
			// Templates do not expand recursively.
			return nil, &ExpansionError{Node: raw.Name, Instance: -1, Field: kv.Key,
				Reason: "nested dynamic_template nodes are not supported"}
		}
		body = append(body, model.RawNode{Name: kv.Key, Fields: fields})
	}
	return body, nil
}

func templateInstances(raw model.RawNode) ([]model.Dict, error) {
	v, ok := raw.Fields.Get("instances")
	if !ok {
		return nil, &ExpansionError{Node: raw.Name, Instance: -1, Reason: "missing required field \"instances\""}
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &ExpansionError{Node: raw.Name, Instance: -1,
			Reason: fmt.Sprintf("field \"instances\" must be a sequence, got %T", v)}
	}
	out := make([]model.Dict, len(list))
	for i, ele := range list {
		dict, ok := ele.(model.Dict)
		if !ok {
			return nil, &ExpansionError{Node: raw.Name, Instance: i,
				Reason: fmt.Sprintf("instance must be a mapping of placeholder to value, got %T", ele)}
		}
		out[i] = dict
	}
	return out, nil
}

// renderNode produces one concrete node from a template body node and one
// instance's bindings.
func renderNode(tmplName string, instance int, node model.RawNode, bindings model.Dict) (model.RawNode, error) {
	sub := func(field string, v any) (any, error) {
		return substitute(tmplName, instance, field, v, bindings)
	}

	nameAny, err := sub("name", node.Name)
	if err != nil {
		return model.RawNode{}, err
	}
	name, ok := nameAny.(string)
	if !ok {
		return model.RawNode{}, &ExpansionError{Node: tmplName, Instance: instance, Field: node.Name,
			Reason: fmt.Sprintf("node name must render to a string, got %T", nameAny)}
	}

	fields := make(model.Dict, 0, len(node.Fields))
	for _, kv := range node.Fields {
		val, err := sub(node.Name+"."+kv.Key, kv.Val)
		if err != nil {
			return model.RawNode{}, err
		}
		fields = append(fields, model.KV{Key: kv.Key, Val: val})
	}
	return model.RawNode{Name: name, Fields: fields}, nil
}

// substitute walks a field value, replacing {placeholder} tokens from the
// bindings. Tokens that remain after substitution are an error reported
// with the instance index and field path.
func substitute(tmplName string, instance int, field string, v any, bindings model.Dict) (any, error) {
	switch val := v.(type) {
	case string:
		return substituteString(tmplName, instance, field, val, bindings)
	case []any:
		out := make([]any, len(val))
		for i, ele := range val {
			sub, err := substitute(tmplName, instance, fmt.Sprintf("%s[%d]", field, i), ele, bindings)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case model.Dict:
		out := make(model.Dict, 0, len(val))
		for _, kv := range val {
			key, err := substitute(tmplName, instance, field+"."+kv.Key, kv.Key, bindings)
			if err != nil {
				return nil, err
			}
			keyStr, ok := key.(string)
			if !ok {
				return nil, &ExpansionError{Node: tmplName, Instance: instance, Field: field + "." + kv.Key,
					Reason: fmt.Sprintf("mapping key must render to a string, got %T", key)}
			}
			sub, err := substitute(tmplName, instance, field+"."+kv.Key, kv.Val, bindings)
			if err != nil {
				return nil, err
			}
			out = append(out, model.KV{Key: keyStr, Val: sub})
		}
		return out, nil
	default:
		// Numbers, bools and nulls carry no tokens.
		return v, nil
	}
}

func substituteString(tmplName string, instance int, field, s string, bindings model.Dict) (any, error) {
	// A string that is exactly one bound token takes the bound value with
	// its original type.
	if m := tokenRe.FindStringSubmatch(s); m != nil && m[0] == s {
		if bound, ok := bindings.Get(m[1]); ok {
			return bound, nil
		}
	}

	out := s
	for _, kv := range bindings {
		token := "{" + kv.Key + "}"
		if !strings.Contains(out, token) {
			continue
		}
		bound, ok := kv.Val.(string)
		if !ok {
			return nil, &ExpansionError{Node: tmplName, Instance: instance, Field: field,
				Reason: fmt.Sprintf("placeholder %q is embedded in a string but its value is %T", kv.Key, kv.Val)}
		}
		out = strings.ReplaceAll(out, token, bound)
	}

	if m := tokenRe.FindStringSubmatch(out); m != nil {
		return nil, &ExpansionError{Node: tmplName, Instance: instance, Field: field,
			Reason: fmt.Sprintf("unresolved placeholder %q", m[1])}
	}
	return out, nil
}
