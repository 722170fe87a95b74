package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeFlattensLeafPaths(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Assign(map[string]any{
		"user":  map[string]any{"name": "ada", "prefs": map[string]any{}},
		"items": []any{"a"},
		"count": 2,
	})
	_, err := root.Watch("user.name", nil)
	require.NoError(t, err)

	assert.Equal(t, []FieldDescriptor{
		{Path: "count", Type: "int"},
		{Path: "items", Type: "[]string"},
		{Path: "user.name", Type: "string", Watchers: 1},
		{Path: "user.prefs", Type: "object"},
	}, root.Describe())
}

func TestDescribeEmptyNode(t *testing.T) {
	rt := New()
	assert.Equal(t, []FieldDescriptor{}, rt.Root().Describe())
}

func TestDescribeIncludesInheritedKeys(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("a", 1)
	child := root.New()
	child.Set("b", true)

	assert.Equal(t, []FieldDescriptor{
		{Path: "a", Type: "int"},
		{Path: "b", Type: "bool"},
	}, child.Describe())
}
