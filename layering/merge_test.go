package layering

import (
	"reflect"
	"testing"
)

func TestMergeStrongestWins(t *testing.T) {
	user := map[string]any{
		"theme": "dark",
		"notifications": map[string]any{
			"email": map[string]any{"enabled": true},
		},
	}
	system := map[string]any{
		"theme":  "light",
		"locale": "en",
		"notifications": map[string]any{
			"email": map[string]any{"enabled": false, "subject": "System"},
			"sms":   map[string]any{"enabled": false},
		},
	}

	got := Merge(user, system)
	want := map[string]any{
		"theme":  "dark",
		"locale": "en",
		"notifications": map[string]any{
			"email": map[string]any{"enabled": true, "subject": "System"},
			"sms":   map[string]any{"enabled": false},
		},
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("merged snapshot mismatch:\nwant: %#v\n got: %#v", want, got)
	}

	got["theme"] = "changed"
	if user["theme"] != "dark" || system["theme"] != "light" {
		t.Fatalf("merge must not alias its inputs")
	}
}

func TestMergeZeroInput(t *testing.T) {
	if got := Merge(); got != nil {
		t.Fatalf("expected nil for empty merge, got %#v", got)
	}
}

func TestMergeArraysAreReplacedWhole(t *testing.T) {
	got := Merge(
		map[string]any{"tags": []any{"a"}},
		map[string]any{"tags": []any{"b", "c"}},
	)
	if !reflect.DeepEqual(got["tags"], []any{"a"}) {
		t.Fatalf("expected strongest array to win, got %#v", got["tags"])
	}
}

func TestNormalizeConvertsTypedContainers(t *testing.T) {
	type point struct{ X int }
	input := map[string]int{"a": 1}
	got := Normalize(map[string]any{
		"counts": input,
		"list":   []string{"x", "y"},
		"nested": map[string]map[string]bool{"inner": {"ok": true}},
		"bytes":  []byte("raw"),
		"point":  point{X: 2},
	})

	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", got)
	}
	if !reflect.DeepEqual(obj["counts"], map[string]any{"a": 1}) {
		t.Fatalf("unexpected counts: %#v", obj["counts"])
	}
	if !reflect.DeepEqual(obj["list"], []any{"x", "y"}) {
		t.Fatalf("unexpected list: %#v", obj["list"])
	}
	if !reflect.DeepEqual(obj["nested"], map[string]any{"inner": map[string]any{"ok": true}}) {
		t.Fatalf("unexpected nested: %#v", obj["nested"])
	}
	if _, ok := obj["bytes"].([]byte); !ok {
		t.Fatalf("byte slices must stay raw, got %T", obj["bytes"])
	}
	if obj["point"] != (point{X: 2}) {
		t.Fatalf("structs must stay raw, got %#v", obj["point"])
	}
}

func TestCloneDetachesNestedContainers(t *testing.T) {
	original := map[string]any{"a": map[string]any{"b": []any{1, 2}}}
	clone := Clone(original).(map[string]any)
	clone["a"].(map[string]any)["b"].([]any)[0] = 99
	if original["a"].(map[string]any)["b"].([]any)[0] != 1 {
		t.Fatalf("clone must not share nested storage")
	}
}

func TestIsObjectAndIsArray(t *testing.T) {
	if !IsObject(map[string]any{}) || IsObject([]any{}) {
		t.Fatalf("IsObject misclassified")
	}
	if !IsArray([]any{}) || IsArray(map[string]any{}) {
		t.Fatalf("IsArray misclassified")
	}
}
