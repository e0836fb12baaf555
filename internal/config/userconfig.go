package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"powerplaylists/internal/model"
)

// LoadUserConfigs reads one or more YAML node-definition files and
// merges them into a single mapping, preserving each file's definition
// order and the order of the files themselves. A node name appearing
// twice, in one file or across files, is an error.
func LoadUserConfigs(paths []string) (model.Mapping, error) {
	var merged model.Mapping
	seen := make(map[string]string, 16)

	for _, path := range paths {
		mapping, err := loadUserConfig(path)
		if err != nil {
			return nil, err
		}
		for _, raw := range mapping {
			if prev, dup := seen[raw.Name]; dup {
				return nil, fmt.Errorf("node %q defined in both %s and %s", raw.Name, prev, path)
			}
			seen[raw.Name] = path
			merged = append(merged, raw)
		}
	}
	return merged, nil
}

func loadUserConfig(path string) (model.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	// UseOrderedMap keeps YAML mappings as yaml.MapSlice so node and
	// field order survive decoding.
	var doc any
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("failed to parse user config %s: %w", path, err)
	}
	if doc == nil {
		return nil, nil
	}

	top, ok := doc.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("user config %s: top level must be a mapping of node definitions", path)
	}

	mapping := make(model.Mapping, 0, len(top))
	for _, item := range top {
		name, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("user config %s: node names must be strings, got %T", path, item.Key)
		}
		body, err := toDict(item.Value)
		if err != nil {
			return nil, fmt.Errorf("user config %s: node %q: %w", path, name, err)
		}
		mapping = append(mapping, model.RawNode{Name: name, Fields: body})
	}
	return mapping, nil
}

// toDict requires v to be a mapping and converts it recursively.
func toDict(v any) (model.Dict, error) {
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	dict := make(model.Dict, 0, len(ms))
	for _, item := range ms {
		key, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("mapping keys must be strings, got %T", item.Key)
		}
		val, err := convertValue(item.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		dict = append(dict, model.KV{Key: key, Val: val})
	}
	return dict, nil
}

// convertValue normalizes decoded YAML values: nested mappings become
// model.Dict, sequences stay []any with converted elements, scalars
// pass through.
func convertValue(v any) (any, error) {
	switch val := v.(type) {
	case yaml.MapSlice:
		return toDict(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			conv, err := convertValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
