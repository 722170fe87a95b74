package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type settings struct {
	Enabled    bool     `json:"enabled"`
	QuietHours window   `json:"quietHours"`
	Channels   channels `json:"channels"`
	Limits     struct {
		Daily   int `json:"daily"`
		Monthly int `json:"monthly"`
	} `json:"limits"`
	Tags []string `json:"tags"`
}

type window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type channels struct {
	Email channel `json:"email"`
	Push  channel `json:"push"`
}

type channel struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency"`
	Threshold int    `json:"threshold"`
}

type exportCase struct {
	Name          string         `json:"name"`
	Node          int64          `json:"node"`
	Scope         string         `json:"scope"`
	Input         map[string]any `json:"input"`
	Expect        settings       `json:"expect"`
	ExpectErr     string         `json:"expectErr"`
	ExpectStage   Stage          `json:"expectStage"`
	PreHooks      []string       `json:"preHooks"`
	PostHooks     []string       `json:"postHooks"`
	Options       []string       `json:"options"`
	CustomDecoder string         `json:"customDecoder"`
}

var (
	namedPreHooks = map[string]PreHook{
		"quiet_hours_split": splitQuietHours,
	}
	namedPostHooks = map[string]PostHook[settings]{
		"ensure_tag": tagWithOrigin,
	}
	namedDecoders = map[string]CustomDecoder[settings]{
		"snapshot_string": decodeEmbeddedSnapshot,
	}
	namedOptions = map[string]func() DecoderOption[settings]{
		"use_number":       WithUseNumber[settings],
		"disallow_unknown": WithDisallowUnknownFields[settings],
	}
)

func TestDecoderExportedSettings(t *testing.T) {
	for _, tc := range readCases(t, "exported_settings.json") {
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder(tc.options(t)...)
			got, err := decoder.Decode(Context{NodeID: tc.Node, Scope: tc.Scope}, tc.Input)

			if tc.ExpectErr == "" {
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if !reflect.DeepEqual(tc.Expect, got) {
					t.Fatalf("decoded settings mismatch:\nwant: %#v\n got: %#v", tc.Expect, got)
				}
				return
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError containing %q, got %v", tc.ExpectErr, err)
			}
			if !strings.Contains(err.Error(), tc.ExpectErr) {
				t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
			}
			if tc.ExpectStage != "" && decodeErr.Stage != tc.ExpectStage {
				t.Fatalf("expected stage %q, got %q", tc.ExpectStage, decodeErr.Stage)
			}
			if decodeErr.Context.NodeID != tc.Node {
				t.Fatalf("expected node %d in error context, got %d", tc.Node, decodeErr.Context.NodeID)
			}
		})
	}
}

func (tc exportCase) options(t *testing.T) []DecoderOption[settings] {
	t.Helper()
	var opts []DecoderOption[settings]
	for _, name := range tc.Options {
		build, ok := namedOptions[name]
		if !ok {
			t.Fatalf("unknown option %q", name)
		}
		opts = append(opts, build())
	}
	for _, name := range tc.PreHooks {
		hook, ok := namedPreHooks[name]
		if !ok {
			t.Fatalf("unknown pre-hook %q", name)
		}
		opts = append(opts, WithPreHook[settings](hook))
	}
	for _, name := range tc.PostHooks {
		hook, ok := namedPostHooks[name]
		if !ok {
			t.Fatalf("unknown post-hook %q", name)
		}
		opts = append(opts, WithPostHook(hook))
	}
	if tc.CustomDecoder != "" {
		custom, ok := namedDecoders[tc.CustomDecoder]
		if !ok {
			t.Fatalf("unknown decoder %q", tc.CustomDecoder)
		}
		opts = append(opts, WithCustomDecoder(custom))
	}
	return opts
}

// splitQuietHours turns "21:30 - 06:45" into a window object.
func splitQuietHours(_ Context, payload map[string]any) (map[string]any, error) {
	raw, ok := payload["quietHours"].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	start, end, found := strings.Cut(raw, "-")
	if !found {
		return nil, fmt.Errorf("invalid quiet hours payload %q", raw)
	}
	payload["quietHours"] = map[string]any{
		"start": strings.TrimSpace(start),
		"end":   strings.TrimSpace(end),
	}
	return payload, nil
}

func tagWithOrigin(ctx Context, out *settings) error {
	if len(out.Tags) == 0 {
		out.Tags = []string{fmt.Sprintf("%s:%d", ctx.Scope, ctx.NodeID)}
	}
	return nil
}

func decodeEmbeddedSnapshot(ctx Context, payload map[string]any) (settings, error) {
	var out settings
	raw, _ := payload["snapshot"].(string)
	if raw == "" {
		return out, fmt.Errorf("missing snapshot string for node %d", ctx.NodeID)
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	err := dec.Decode(&out)
	return out, err
}

func readCases(t *testing.T, name string) []exportCase {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var doc struct {
		Cases []exportCase `json:"cases"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(doc.Cases) == 0 {
		t.Fatalf("%s has no cases", name)
	}
	return doc.Cases
}

func TestDecodeErrorReportsStage(t *testing.T) {
	decoder := NewDecoder(WithPostHook[settings](func(Context, *settings) error {
		return errors.New("rejected")
	}))
	_, err := decoder.Decode(Context{NodeID: 3, Path: "prefs"}, map[string]any{"enabled": true})

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Stage != StagePostHook {
		t.Fatalf("expected post-hook stage, got %q", decodeErr.Stage)
	}
	if err.Error() != `hydrate: post-hook for node 3 path "prefs": rejected` {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestDecodeDoesNotMutatePayload(t *testing.T) {
	payload := map[string]any{"quietHours": "22:00-06:00"}
	decoder := NewDecoder(WithPreHook[settings](splitQuietHours))
	got, err := decoder.Decode(Context{NodeID: 1}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.QuietHours != (window{Start: "22:00", End: "06:00"}) {
		t.Fatalf("unexpected window %+v", got.QuietHours)
	}
	if payload["quietHours"] != "22:00-06:00" {
		t.Fatalf("expected caller payload untouched, got %v", payload["quietHours"])
	}
}

func TestDecodeNilPayload(t *testing.T) {
	_, err := NewDecoder[settings]().Decode(Context{NodeID: 2}, nil)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Stage != StagePayload {
		t.Fatalf("expected payload stage error, got %v", err)
	}
}
