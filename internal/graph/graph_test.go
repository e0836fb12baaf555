package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerplaylists/internal/model"
)

func node(name string, fields ...model.KV) model.RawNode {
	return model.RawNode{Name: name, Fields: fields}
}

func playlistNode(name, uri string) model.RawNode {
	return node(name, model.KV{Key: "type", Val: "playlist"}, model.KV{Key: "uri", Val: uri})
}

func outputNode(name, input, playlist string) model.RawNode {
	return node(name,
		model.KV{Key: "type", Val: "output"},
		model.KV{Key: "input", Val: input},
		model.KV{Key: "playlist_name", Val: playlist})
}

func TestBuild(t *testing.T) {
	mapping := model.Mapping{
		playlistNode("a", "spotify:playlist:a"),
		playlistNode("b", "spotify:playlist:b"),
		node("both",
			model.KV{Key: "type", Val: "combiner"},
			model.KV{Key: "inputs", Val: []any{"a", "b"}}),
		node("sorted",
			model.KV{Key: "type", Val: "sort"},
			model.KV{Key: "input", Val: "both"},
			model.KV{Key: "sort_key", Val: "name"}),
		outputNode("out", "sorted", "Everything"),
	}

	g, err := Build(context.Background(), mapping)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 5)

	both := g.Nodes["both"]
	assert.Contains(t, both.Deps, "a")
	assert.Contains(t, both.Deps, "b")
	assert.Contains(t, g.Nodes["a"].Dependents, "both")

	// Producers precede consumers, ties broken by definition order.
	assert.Equal(t, []string{"a", "b", "both", "sorted", "out"}, g.Order)

	outputs := g.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "out", outputs[0].Spec.Name)
}

func TestBuildOrderIsStableAcrossRuns(t *testing.T) {
	mapping := model.Mapping{
		playlistNode("p1", "u1"),
		playlistNode("p2", "u2"),
		playlistNode("p3", "u3"),
		node("c",
			model.KV{Key: "type", Val: "combiner"},
			model.KV{Key: "inputs", Val: []any{"p3", "p1", "p2"}}),
		outputNode("out", "c", "P"),
	}
	first, err := Build(context.Background(), mapping)
	require.NoError(t, err)
	for range 10 {
		again, err := Build(context.Background(), mapping)
		require.NoError(t, err)
		assert.Equal(t, first.Order, again.Order)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Run("unknown reference names both ends", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			outputNode("out", "missing", "P"),
		})
		var refErr *UnknownReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Equal(t, "out", refErr.Node)
		assert.Equal(t, "missing", refErr.Ref)
	})

	t.Run("unknown node type", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			node("x", model.KV{Key: "type", Val: "telepathy"}),
		})
		assert.ErrorContains(t, err, `unknown node type "telepathy"`)
	})

	t.Run("duplicate node name", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			playlistNode("a", "u1"),
			playlistNode("a", "u2"),
		})
		assert.ErrorContains(t, err, "duplicate node name")
	})

	t.Run("source with input", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			playlistNode("a", "u"),
			node("b",
				model.KV{Key: "type", Val: "playlist"},
				model.KV{Key: "uri", Val: "u2"},
				model.KV{Key: "input", Val: "a"}),
		})
		assert.ErrorContains(t, err, "source nodes take no inputs")
	})

	t.Run("missing required parameter", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			node("x", model.KV{Key: "type", Val: "playlist"}),
		})
		assert.ErrorContains(t, err, `missing required parameter "uri"`)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			node("x",
				model.KV{Key: "type", Val: "playlist"},
				model.KV{Key: "uri", Val: "u"},
				model.KV{Key: "shuffle", Val: true}),
		})
		assert.ErrorContains(t, err, `unknown parameter "shuffle"`)
	})

	t.Run("invalid sort key", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			playlistNode("a", "u"),
			node("s",
				model.KV{Key: "type", Val: "sort"},
				model.KV{Key: "input", Val: "a"},
				model.KV{Key: "sort_key", Val: "tempo"}),
		})
		assert.ErrorContains(t, err, `unrecognized sort_key "tempo"`)
	})

	t.Run("filter with both cutoff forms", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			playlistNode("a", "u"),
			node("f",
				model.KV{Key: "type", Val: "filter_time_added"},
				model.KV{Key: "input", Val: "a"},
				model.KV{Key: "days_ago", Val: int64(7)},
				model.KV{Key: "cutoff_time", Val: "2024-01-01"}),
		})
		assert.ErrorContains(t, err, "cannot set both days_ago and cutoff_time")
	})

	t.Run("two outputs targeting one playlist", func(t *testing.T) {
		_, err := Build(context.Background(), model.Mapping{
			playlistNode("a", "u"),
			outputNode("out1", "a", "Same"),
			outputNode("out2", "a", "Same"),
		})
		assert.ErrorContains(t, err, `already targeted`)
	})
}

func TestDetectCycles(t *testing.T) {
	_, err := Build(context.Background(), model.Mapping{
		node("x",
			model.KV{Key: "type", Val: "dedup"},
			model.KV{Key: "input", Val: "y"}),
		node("y",
			model.KV{Key: "type", Val: "dedup"},
			model.KV{Key: "input", Val: "x"}),
	})
	var cycErr *CyclicGraphError
	require.ErrorAs(t, err, &cycErr)
	// The reported path closes the loop.
	require.GreaterOrEqual(t, len(cycErr.Path), 3)
	assert.Equal(t, cycErr.Path[0], cycErr.Path[len(cycErr.Path)-1])
	assert.ErrorContains(t, err, "->")
}

func TestSelfReferenceIsACycle(t *testing.T) {
	_, err := Build(context.Background(), model.Mapping{
		node("x",
			model.KV{Key: "type", Val: "dedup"},
			model.KV{Key: "input", Val: "x"}),
	})
	var cycErr *CyclicGraphError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, []string{"x", "x"}, cycErr.Path)
}
