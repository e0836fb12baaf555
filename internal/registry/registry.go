// Package registry is the closed table of node kinds the engine knows how
// to evaluate. Each kind declares its input arity and parameter schema;
// the graph builder validates every node against its definition before a
// graph is accepted, and the evaluator dispatches on the kind tag.
package registry

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"powerplaylists/internal/model"
)

// Kind is the type tag of a node.
type Kind string

const (
	KindPlaylist          Kind = "playlist"
	KindLikedTracks       Kind = "liked_tracks"
	KindAllTracks         Kind = "all_tracks"
	KindIsLiked           Kind = "is_liked"
	KindFilterTimeAdded   Kind = "filter_time_added"
	KindFilterReleaseDate Kind = "filter_release_date"
	KindCombiner          Kind = "combiner"
	KindSort              Kind = "sort"
	KindDedup             Kind = "dedup"
	KindLimit             Kind = "limit"
	KindOutput            Kind = "output"
)

// Param describes one parameter of a node kind.
type Param struct {
	Name     string
	Type     cty.Type
	Required bool
}

// Definition is the capability set of a node kind.
type Definition struct {
	Kind     Kind
	Source   bool // fetches remote data, declares no inputs
	Terminal bool // output node, consumed by the reconciler

	// MinInputs/MaxInputs bound the declared input count. MaxInputs < 0
	// means unbounded.
	MinInputs int
	MaxInputs int

	Params []Param

	// Validate runs kind-specific checks beyond presence and type.
	Validate func(spec *model.NodeSpec) error
}

// SortKeys are the recognized values for the sort node's sort_key.
var SortKeys = map[string]struct{}{
	"time_added":   {},
	"name":         {},
	"artist":       {},
	"album":        {},
	"release_date": {},
}

var defs = map[Kind]*Definition{
	KindPlaylist: {
		Kind:   KindPlaylist,
		Source: true,
		Params: []Param{{Name: "uri", Type: cty.String, Required: true}},
	},
	KindLikedTracks: {
		Kind:   KindLikedTracks,
		Source: true,
	},
	KindAllTracks: {
		Kind:   KindAllTracks,
		Source: true,
		Params: []Param{{Name: "include_generated", Type: cty.Bool}},
	},
	KindIsLiked: {
		Kind:      KindIsLiked,
		MinInputs: 1,
		MaxInputs: 1,
	},
	KindFilterTimeAdded: {
		Kind:      KindFilterTimeAdded,
		MinInputs: 1,
		MaxInputs: 1,
		Params: []Param{
			{Name: "days_ago", Type: cty.Number},
			{Name: "cutoff_time", Type: cty.String},
			{Name: "keep_before", Type: cty.Bool},
		},
		Validate: validateCutoff,
	},
	KindFilterReleaseDate: {
		Kind:      KindFilterReleaseDate,
		MinInputs: 1,
		MaxInputs: 1,
		Params: []Param{
			{Name: "days_ago", Type: cty.Number},
			{Name: "cutoff_time", Type: cty.String},
			{Name: "keep_before", Type: cty.Bool},
		},
		Validate: validateCutoff,
	},
	KindCombiner: {
		Kind:      KindCombiner,
		MinInputs: 1,
		MaxInputs: -1,
		Params:    []Param{{Name: "combine_type", Type: cty.String}},
		Validate: func(spec *model.NodeSpec) error {
			ct, ok, err := spec.StringParam("combine_type")
			if err != nil {
				return err
			}
			if ok && ct != "concat" && ct != "interleave" {
				return fmt.Errorf("unrecognized combine_type %q (want \"concat\" or \"interleave\")", ct)
			}
			return nil
		},
	},
	KindSort: {
		Kind:      KindSort,
		MinInputs: 1,
		MaxInputs: 1,
		Params: []Param{
			{Name: "sort_key", Type: cty.String, Required: true},
			{Name: "sort_desc", Type: cty.Bool},
		},
		Validate: func(spec *model.NodeSpec) error {
			key, _, err := spec.StringParam("sort_key")
			if err != nil {
				return err
			}
			if _, ok := SortKeys[key]; !ok {
				return fmt.Errorf("unrecognized sort_key %q", key)
			}
			return nil
		},
	},
	KindDedup: {
		Kind:      KindDedup,
		MinInputs: 1,
		MaxInputs: 1,
		Params:    []Param{{Name: "use_uris", Type: cty.Bool}},
	},
	KindLimit: {
		Kind:      KindLimit,
		MinInputs: 1,
		MaxInputs: 1,
		Params:    []Param{{Name: "max_size", Type: cty.Number, Required: true}},
		Validate: func(spec *model.NodeSpec) error {
			n, _, err := spec.IntParam("max_size")
			if err != nil {
				return err
			}
			if n < 0 {
				return fmt.Errorf("max_size must be >= 0, got %d", n)
			}
			return nil
		},
	},
	KindOutput: {
		Kind:      KindOutput,
		Terminal:  true,
		MinInputs: 1,
		MaxInputs: 1,
		Params: []Param{
			{Name: "playlist_name", Type: cty.String, Required: true},
			{Name: "public", Type: cty.Bool},
		},
	},
}

// validateCutoff enforces that exactly one of days_ago / cutoff_time is set.
func validateCutoff(spec *model.NodeSpec) error {
	_, hasDays := spec.Params["days_ago"]
	_, hasCutoff := spec.Params["cutoff_time"]
	if hasDays && hasCutoff {
		return fmt.Errorf("cannot set both days_ago and cutoff_time")
	}
	if !hasDays && !hasCutoff {
		return fmt.Errorf("one of days_ago or cutoff_time is required")
	}
	return nil
}

// Lookup returns the definition for a node type tag.
func Lookup(typeTag string) (*Definition, bool) {
	def, ok := defs[Kind(typeTag)]
	return def, ok
}

// Kinds returns every registered kind tag.
func Kinds() []Kind {
	out := make([]Kind, 0, len(defs))
	for k := range defs {
		out = append(out, k)
	}
	return out
}

// CheckParams validates a spec's parameters against the definition:
// required parameters must be present, and every declared parameter must
// convert to its schema type. Unknown parameters are rejected so typos do
// not silently change behavior.
func (d *Definition) CheckParams(spec *model.NodeSpec) error {
	byName := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		byName[p.Name] = p
	}
	for _, p := range d.Params {
		val, ok := spec.Params[p.Name]
		if !ok {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if _, err := convert.Convert(val, p.Type); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	for name := range spec.Params {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	if d.Validate != nil {
		return d.Validate(spec)
	}
	return nil
}

// CheckArity validates the declared input count against the definition.
func (d *Definition) CheckArity(spec *model.NodeSpec) error {
	n := len(spec.InputNames())
	if d.Source {
		if n != 0 {
			return fmt.Errorf("source nodes take no inputs, got %d", n)
		}
		return nil
	}
	if n < d.MinInputs {
		return fmt.Errorf("requires at least %d input(s), got %d", d.MinInputs, n)
	}
	if d.MaxInputs >= 0 && n > d.MaxInputs {
		return fmt.Errorf("takes at most %d input(s), got %d", d.MaxInputs, n)
	}
	return nil
}
