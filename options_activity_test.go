package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-scope/pkg/activity"
)

func TestWithActivityHooksClonesAndFiltersNil(t *testing.T) {
	hook := activity.HookFunc(func(context.Context, activity.Event) error { return nil })

	rt := New(WithActivityHooks(activity.Hooks{nil, hook}))
	hooks := rt.ActivityHooks()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	// Mutate returned slice and ensure original configuration is unaffected.
	hooks[0] = nil
	again := rt.ActivityHooks()
	if len(again) != 1 || again[0] == nil {
		t.Fatalf("expected cloned hooks unaffected by mutation, got %+v", again)
	}
}

func TestActivityHooksDefaultNil(t *testing.T) {
	rt := New()
	if hooks := rt.ActivityHooks(); hooks != nil {
		t.Fatalf("expected nil hooks by default, got %+v", hooks)
	}
}

func TestScopeLifecycleEmitsActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	rt := New(WithActivityHooks(activity.Hooks{capture}), WithActivityChannel("ui"))

	root := rt.Root()
	child := root.NewIsolated()
	if _, err := child.Watch("a", nil); err != nil {
		t.Fatalf("watch: %v", err)
	}
	child.Destroy()

	if len(capture.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(capture.Events))
	}
	created := capture.Events[1]
	if created.Verb != activity.VerbScopeCreated || created.ObjectID != "2" {
		t.Fatalf("unexpected created event: %+v", created)
	}
	if created.Metadata["parent_id"] != "1" || created.Metadata["isolated"] != true {
		t.Fatalf("expected lineage metadata, got %+v", created.Metadata)
	}
	if created.Channel != "ui" {
		t.Fatalf("expected channel override, got %q", created.Channel)
	}

	destroyed := capture.Events[2]
	if destroyed.Verb != activity.VerbScopeDestroyed || destroyed.ObjectID != "2" {
		t.Fatalf("unexpected destroyed event: %+v", destroyed)
	}
}

func TestActivityHookFailureDoesNotBreakRuntime(t *testing.T) {
	failing := activity.HookFunc(func(context.Context, activity.Event) error { return errors.New("down") })
	rt := New(WithActivityHooks(activity.Hooks{failing}))

	root := rt.Root()
	child := root.New()
	child.Set("a", 1)
	if got := child.Get("a"); got != 1 {
		t.Fatalf("expected runtime unaffected, got %v", got)
	}
}
