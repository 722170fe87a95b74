package scope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string   `json:"name"`
	Age   int      `json:"age"`
	Roles []string `json:"roles"`
}

type session struct {
	Theme string  `json:"theme"`
	User  profile `json:"user"`
}

func TestDecodeVisibleKeys(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("theme", "dark")
	child := root.New()
	child.Set("user", map[string]any{"name": "ada", "age": 36, "roles": []any{"admin"}})

	got, err := Decode[session](child)
	require.NoError(t, err)
	assert.Equal(t, session{Theme: "dark", User: profile{Name: "ada", Age: 36, Roles: []string{"admin"}}}, got)
}

func TestDecodeStrictRejectsUnknownKeys(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Assign(map[string]any{"theme": "dark", "extra": 1})

	_, err := Decode[session](root)
	require.NoError(t, err)

	_, err = DecodeStrict[session](root)
	require.Error(t, err)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, root.ID(), decodeErr.Context.NodeID)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestDecodePathAndHooks(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.SetPath("app.user", map[string]any{"name": "ada", "age": 36})

	got, err := DecodePath[profile](root, "app.user",
		DecodePreHook[profile](func(ctx DecodeContext, payload map[string]any) (map[string]any, error) {
			payload["roles"] = []any{ctx.Path}
			return payload, nil
		}),
		DecodePostHook[profile](func(_ DecodeContext, p *profile) error {
			p.Age++
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "ada", Age: 37, Roles: []string{"app.user"}}, got)

	_, err = DecodePath[profile](root, "app.missing")
	assert.ErrorContains(t, err, "path not found")

	root.Set("flat", 1)
	_, err = DecodePath[profile](root, "flat")
	assert.ErrorContains(t, err, "not an object")
}

func TestDecodeUseNumberAndCustom(t *testing.T) {
	rt := New()
	root := rt.Root()
	root.Set("n", 12)

	got, err := Decode[map[string]any](root, DecodeUseNumber[map[string]any]())
	require.NoError(t, err)
	assert.Equal(t, json.Number("12"), got["n"])

	custom, err := Decode[int](root, DecodeWith[int](func(_ DecodeContext, payload map[string]any) (int, error) {
		n, _ := payload["n"].(int)
		return n * 2, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 24, custom)
}

func TestDecodeNilNode(t *testing.T) {
	_, err := Decode[session](nil)
	assert.ErrorIs(t, err, ErrDestroyed)
}
