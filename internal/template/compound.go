package template

import (
	"fmt"

	"powerplaylists/internal/model"
)

// expandCompound unfolds a combine_sort_dedup_output node into
// combiner -> sort -> dedup -> output. The synthesized output node takes
// the compound node's name, so run reports key on the declared name.
func expandCompound(raw model.RawNode) (model.Mapping, error) {
	name := raw.Name
	fields := raw.Fields

	playlistName, ok := fields.Get("output_playlist_name")
	if !ok {
		return nil, &ExpansionError{Node: name, Instance: -1, Reason: "missing required field \"output_playlist_name\""}
	}
	sortKey, ok := fields.Get("sort_key")
	if !ok {
		return nil, &ExpansionError{Node: name, Instance: -1, Reason: "missing required field \"sort_key\""}
	}

	inputNodes, hasNodes := fields.Get("input_nodes")
	inputURIs, hasURIs := fields.Get("input_uris")
	if hasNodes == hasURIs {
		return nil, &ExpansionError{Node: name, Instance: -1,
			Reason: "exactly one of \"input_nodes\" or \"input_uris\" is required"}
	}

	var out model.Mapping
	var combinerInputs []any

	if hasURIs {
		uris, ok := inputURIs.([]any)
		if !ok {
			return nil, &ExpansionError{Node: name, Instance: -1, Field: "input_uris",
				Reason: fmt.Sprintf("must be a sequence, got %T", inputURIs)}
		}
		for i, uri := range uris {
			inName := fmt.Sprintf("%s_in_%d", name, i)
			out = append(out, model.RawNode{Name: inName, Fields: model.Dict{
				{Key: "type", Val: "playlist"},
				{Key: "uri", Val: uri},
			}})
			combinerInputs = append(combinerInputs, inName)
		}
	} else {
		nodes, ok := inputNodes.([]any)
		if !ok {
			return nil, &ExpansionError{Node: name, Instance: -1, Field: "input_nodes",
				Reason: fmt.Sprintf("must be a sequence, got %T", inputNodes)}
		}
		combinerInputs = nodes
	}

	out = append(out, model.RawNode{Name: name + "_combine", Fields: model.Dict{
		{Key: "type", Val: "combiner"},
		{Key: "inputs", Val: combinerInputs},
	}})

	sortFields := model.Dict{
		{Key: "type", Val: "sort"},
		{Key: "input", Val: name + "_combine"},
		{Key: "sort_key", Val: sortKey},
	}
	if desc, ok := fields.Get("sort_desc"); ok {
		sortFields = append(sortFields, model.KV{Key: "sort_desc", Val: desc})
	}
	out = append(out, model.RawNode{Name: name + "_sort", Fields: sortFields})

	out = append(out, model.RawNode{Name: name + "_dedup", Fields: model.Dict{
		{Key: "type", Val: "dedup"},
		{Key: "input", Val: name + "_sort"},
	}})

	outputFields := model.Dict{
		{Key: "type", Val: "output"},
		{Key: "input", Val: name + "_dedup"},
		{Key: "playlist_name", Val: playlistName},
	}
	if public, ok := fields.Get("public"); ok {
		outputFields = append(outputFields, model.KV{Key: "public", Val: public})
	}
	out = append(out, model.RawNode{Name: name, Fields: outputFields})

	return out, nil
}
