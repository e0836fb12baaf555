package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"powerplaylists/internal/model"
	"powerplaylists/internal/registry"
	"powerplaylists/internal/track"
)

// transformFunc computes a node's track set from its resolved inputs and
// parameters. Transforms are pure: they never mutate their inputs, and
// only source kinds touch the provider (through the run context).
type transformFunc func(ctx context.Context, rc *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error)

// transforms is the closed dispatch table, one entry per registry kind.
// TestTransformsCoverRegistry keeps it in lockstep with the registry.
var transforms = map[registry.Kind]transformFunc{
	registry.KindPlaylist:          evalPlaylist,
	registry.KindLikedTracks:       evalLikedTracks,
	registry.KindAllTracks:         evalAllTracks,
	registry.KindIsLiked:           evalIsLiked,
	registry.KindFilterTimeAdded:   evalFilterTimeAdded,
	registry.KindFilterReleaseDate: evalFilterReleaseDate,
	registry.KindCombiner:          evalCombiner,
	registry.KindSort:              evalSort,
	registry.KindDedup:             evalDedup,
	registry.KindLimit:             evalLimit,
	registry.KindOutput:            evalOutput,
}

func evalPlaylist(ctx context.Context, rc *RunContext, spec *model.NodeSpec, _ []track.Set) (track.Set, error) {
	uri, _, err := spec.StringParam("uri")
	if err != nil {
		return nil, err
	}
	return rc.FetchPlaylist(ctx, uri)
}

func evalLikedTracks(ctx context.Context, rc *RunContext, _ *model.NodeSpec, _ []track.Set) (track.Set, error) {
	return rc.Provider.FetchLikedTracks(ctx)
}

func evalAllTracks(ctx context.Context, rc *RunContext, spec *model.NodeSpec, _ []track.Set) (track.Set, error) {
	includeGenerated, err := spec.BoolParam("include_generated", false)
	if err != nil {
		return nil, err
	}
	return rc.Provider.FetchAllLibraryTracks(ctx, includeGenerated)
}

func evalIsLiked(ctx context.Context, rc *RunContext, _ *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	var liked map[string]struct{}
	out := make(track.Set, 0, len(inputs[0]))
	for _, t := range inputs[0] {
		switch t.Liked {
		case track.LikedTrue:
			out = append(out, t)
		case track.LikedFalse:
			// dropped
		default:
			if liked == nil {
				var err error
				if liked, err = rc.LikedIDs(ctx); err != nil {
					return nil, err
				}
			}
			if _, ok := liked[t.ID]; ok {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func evalFilterTimeAdded(ctx context.Context, rc *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	cutoff, keepBefore, err := resolveCutoff(rc, spec)
	if err != nil {
		return nil, err
	}
	out := make(track.Set, 0, len(inputs[0]))
	for _, t := range inputs[0] {
		if t.AddedAt.IsZero() {
			continue
		}
		if keepTime(t.AddedAt, cutoff, keepBefore) {
			out = append(out, t)
		}
	}
	return out, nil
}

func evalFilterReleaseDate(ctx context.Context, rc *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	cutoff, keepBefore, err := resolveCutoff(rc, spec)
	if err != nil {
		return nil, err
	}
	out := make(track.Set, 0, len(inputs[0]))
	for _, t := range inputs[0] {
		released, ok, err := track.ParseReleaseDate(t.ReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("node %q: track %q: %w", spec.Name, t.ID, err)
		}
		if !ok {
			continue
		}
		if keepTime(released, cutoff, keepBefore) {
			out = append(out, t)
		}
	}
	return out, nil
}

// keepTime applies the cutoff comparison: by default tracks at or after
// the cutoff are kept, keep_before flips the direction.
func keepTime(t, cutoff time.Time, keepBefore bool) bool {
	if keepBefore {
		return t.Before(cutoff)
	}
	return !t.Before(cutoff)
}

// cutoffLayouts accepted for the cutoff_time parameter.
var cutoffLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func resolveCutoff(rc *RunContext, spec *model.NodeSpec) (time.Time, bool, error) {
	keepBefore, err := spec.BoolParam("keep_before", false)
	if err != nil {
		return time.Time{}, false, err
	}
	if days, ok, err := spec.IntParam("days_ago"); err != nil {
		return time.Time{}, false, err
	} else if ok {
		return rc.Now().Add(-time.Duration(days) * 24 * time.Hour), keepBefore, nil
	}
	raw, _, err := spec.StringParam("cutoff_time")
	if err != nil {
		return time.Time{}, false, err
	}
	for _, layout := range cutoffLayouts {
		if cutoff, err := time.Parse(layout, raw); err == nil {
			return cutoff, keepBefore, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("node %q: unparsable cutoff_time %q", spec.Name, raw)
}

func evalCombiner(_ context.Context, _ *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	combineType, ok, err := spec.StringParam("combine_type")
	if err != nil {
		return nil, err
	}
	if !ok {
		combineType = "concat"
	}
	switch combineType {
	case "concat":
		var out track.Set
		for _, in := range inputs {
			out = append(out, in...)
		}
		return out, nil
	case "interleave":
		var out track.Set
		for idx := 0; ; idx++ {
			appended := false
			for _, in := range inputs {
				if idx < len(in) {
					out = append(out, in[idx])
					appended = true
				}
			}
			if !appended {
				return out, nil
			}
		}
	default:
		return nil, fmt.Errorf("node %q: invalid combine_type %q", spec.Name, combineType)
	}
}

func evalSort(_ context.Context, _ *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	sortKey, _, err := spec.StringParam("sort_key")
	if err != nil {
		return nil, err
	}
	desc, err := spec.BoolParam("sort_desc", false)
	if err != nil {
		return nil, err
	}
	key, err := sortKeyFunc(sortKey)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", spec.Name, err)
	}

	out := append(track.Set{}, inputs[0]...)
	slices.SortStableFunc(out, func(a, b track.Track) int {
		av, aOK := key(a)
		bv, bOK := key(b)
		// Tracks missing the key always sort last, ascending or not.
		switch {
		case !aOK && !bOK:
			return 0
		case !aOK:
			return 1
		case !bOK:
			return -1
		}
		c := strings.Compare(av, bv)
		if desc {
			return -c
		}
		return c
	})
	return out, nil
}

// sortKeyFunc returns a comparable string projection for a sort key. The
// time_added projection uses RFC3339, which orders lexically; release
// dates order lexically in their raw partial form ("2006" < "2006-03").
func sortKeyFunc(sortKey string) (func(track.Track) (string, bool), error) {
	switch sortKey {
	case "time_added":
		return func(t track.Track) (string, bool) {
			if t.AddedAt.IsZero() {
				return "", false
			}
			return t.AddedAt.UTC().Format(time.RFC3339), true
		}, nil
	case "name":
		return func(t track.Track) (string, bool) { return t.Name, t.Name != "" }, nil
	case "artist":
		return func(t track.Track) (string, bool) { return t.Artist, t.Artist != "" }, nil
	case "album":
		return func(t track.Track) (string, bool) { return t.Album, t.Album != "" }, nil
	case "release_date":
		return func(t track.Track) (string, bool) { return t.ReleaseDate, t.ReleaseDate != "" }, nil
	default:
		return nil, fmt.Errorf("unrecognized sort_key %q", sortKey)
	}
}

func evalDedup(_ context.Context, _ *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	useURIs, err := spec.BoolParam("use_uris", true)
	if err != nil {
		return nil, err
	}
	identity := func(t track.Track) string { return t.ID }
	if !useURIs {
		identity = func(t track.Track) string {
			return t.Name + "\x00" + t.Album + "\x00" + t.Artist
		}
	}

	seen := make(map[string]struct{}, len(inputs[0]))
	out := make(track.Set, 0, len(inputs[0]))
	for _, t := range inputs[0] {
		id := identity(t)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func evalLimit(_ context.Context, _ *RunContext, spec *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	maxSize, _, err := spec.IntParam("max_size")
	if err != nil {
		return nil, err
	}
	in := inputs[0]
	if int64(len(in)) <= maxSize {
		return append(track.Set{}, in...), nil
	}
	return append(track.Set{}, in[:maxSize]...), nil
}

// evalOutput passes its input through; the reconciler consumes the
// recorded set after the walk.
func evalOutput(_ context.Context, _ *RunContext, _ *model.NodeSpec, inputs []track.Set) (track.Set, error) {
	return inputs[0], nil
}
