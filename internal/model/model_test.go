package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestDict(t *testing.T) {
	d := Dict{{Key: "a", Val: 1}, {Key: "b", Val: 2}}

	v, ok := d.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = d.Get("missing")
	assert.False(t, ok)
	assert.True(t, d.Has("b"))

	trimmed := d.Without("a")
	assert.Equal(t, Dict{{Key: "b", Val: 2}}, trimmed)
	// Without does not mutate the receiver.
	assert.Len(t, d, 2)
}

func TestParseNode(t *testing.T) {
	t.Run("single input form", func(t *testing.T) {
		spec, err := ParseNode(RawNode{Name: "s", Fields: Dict{
			{Key: "type", Val: "sort"},
			{Key: "input", Val: "src"},
			{Key: "sort_key", Val: "name"},
		}}, 3)
		require.NoError(t, err)
		assert.Equal(t, "s", spec.Name)
		assert.Equal(t, "sort", spec.Type)
		assert.Equal(t, []string{"src"}, spec.InputNames())
		assert.Equal(t, 3, spec.Def)

		key, ok, err := spec.StringParam("sort_key")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "name", key)
	})

	t.Run("multi input form", func(t *testing.T) {
		spec, err := ParseNode(RawNode{Name: "c", Fields: Dict{
			{Key: "type", Val: "combiner"},
			{Key: "inputs", Val: []any{"a", "b"}},
		}}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, spec.InputNames())
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseNode(RawNode{Name: "x", Fields: Dict{{Key: "uri", Val: "u"}}}, 0)
		assert.ErrorContains(t, err, `missing required field "type"`)
	})

	t.Run("input and inputs are mutually exclusive", func(t *testing.T) {
		_, err := ParseNode(RawNode{Name: "x", Fields: Dict{
			{Key: "type", Val: "combiner"},
			{Key: "input", Val: "a"},
			{Key: "inputs", Val: []any{"b"}},
		}}, 0)
		assert.ErrorContains(t, err, "mutually exclusive")
	})

	t.Run("non-string input element", func(t *testing.T) {
		_, err := ParseNode(RawNode{Name: "x", Fields: Dict{
			{Key: "type", Val: "combiner"},
			{Key: "inputs", Val: []any{"a", 7}},
		}}, 0)
		assert.ErrorContains(t, err, "inputs[1]")
	})
}

func TestFromGo(t *testing.T) {
	v, err := FromGo("hi")
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("hi"), v)

	v, err = FromGo(uint64(42))
	require.NoError(t, err)
	assert.True(t, cty.NumberIntVal(42).RawEquals(v))

	v, err = FromGo([]any{"a", int64(1)})
	require.NoError(t, err)
	assert.True(t, v.Type().IsTupleType())

	v, err = FromGo(Dict{{Key: "k", Val: true}})
	require.NoError(t, err)
	assert.True(t, v.Type().IsObjectType())

	_, err = FromGo(struct{}{})
	assert.ErrorContains(t, err, "unsupported value type")
}

func TestParamAccessors(t *testing.T) {
	spec, err := ParseNode(RawNode{Name: "n", Fields: Dict{
		{Key: "type", Val: "limit"},
		{Key: "input", Val: "src"},
		{Key: "max_size", Val: uint64(25)},
		{Key: "flag", Val: true},
		{Key: "names", Val: []any{"a", "b"}},
	}}, 0)
	require.NoError(t, err)

	n, ok, err := spec.IntParam("max_size")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(25), n)

	_, ok, err = spec.IntParam("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := spec.BoolParam("flag", false)
	require.NoError(t, err)
	assert.True(t, b)
	b, err = spec.BoolParam("absent", true)
	require.NoError(t, err)
	assert.True(t, b)

	list, ok, err := spec.StringListParam("names")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, list)
}
