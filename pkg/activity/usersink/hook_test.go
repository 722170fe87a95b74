package usersink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	scope "github.com/goliatone/go-scope"
	"github.com/goliatone/go-scope/pkg/activity"
	"github.com/goliatone/go-scope/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsScopeEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	tenantID := uuid.New()

	event := activity.BuildScopeCreatedEvent(activity.ScopeEventInput{
		ActorID:    actorID.String(),
		TenantID:   tenantID.String(),
		ObjectID:   "7",
		ParentID:   "1",
		RootID:     "1",
		Channel:    "scope",
		OccurredAt: now,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, record.ActorID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != activity.VerbScopeCreated || record.ObjectType != "scope" || record.ObjectID != "7" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "scope" {
		t.Fatalf("expected channel scope got %q", record.Channel)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["parent_id"] != "1" || record.Data["root_id"] != "1" {
		t.Fatalf("expected hierarchy metadata passthrough got %v", record.Data)
	}
}

func TestHookNotifyKeepsNonUUIDActor(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.BuildStateSavedEvent(activity.SnapshotEventInput{
		ActorID:    "cli",
		Domain:     "ui",
		Key:        "session",
		SnapshotID: "snap-1",
	}))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	record := sink.records[0]
	if record.ActorID != uuid.Nil {
		t.Fatalf("expected nil actor uuid, got %s", record.ActorID)
	}
	if record.Data["actor_ref"] != "cli" {
		t.Fatalf("expected actor_ref metadata, got %v", record.Data)
	}
	if record.ObjectType != "scope.snapshot" || record.ObjectID != "snap-1" {
		t.Fatalf("unexpected snapshot record: %+v", record)
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyFiltersVerbs(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.ScopeLifecycle(sink)

	_ = hook.Notify(context.Background(), activity.BuildStateSavedEvent(activity.SnapshotEventInput{SnapshotID: "s"}))
	_ = hook.Notify(context.Background(), activity.BuildScopeDestroyedEvent(activity.ScopeEventInput{ObjectID: "3"}))

	if len(sink.records) != 1 {
		t.Fatalf("expected only the lifecycle event, got %d", len(sink.records))
	}
	if sink.records[0].Verb != activity.VerbScopeDestroyed {
		t.Fatalf("unexpected verb %q", sink.records[0].Verb)
	}
}

func TestHookNotifyDefaultsTimestamp(t *testing.T) {
	sink := &recordingSink{}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	hook := usersink.Hook{Sink: sink, Now: func() time.Time { return fixed }}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbScopeCreated,
		ObjectType: "scope",
		ObjectID:   "1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}

func TestHookNotifyReturnsSinkError(t *testing.T) {
	boom := errors.New("sink down")
	hook := usersink.Hook{Sink: &recordingSink{err: boom}}
	err := hook.Notify(context.Background(), activity.BuildScopeCreatedEvent(activity.ScopeEventInput{ObjectID: "1"}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestRuntimeLifecycleReachesSink(t *testing.T) {
	sink := &recordingSink{}
	rt := scope.New(scope.WithActivityHooks(activity.Hooks{usersink.ScopeLifecycle(sink)}))
	root := rt.Root()
	child := root.New()
	child.Destroy()

	var verbs []string
	for _, record := range sink.records {
		verbs = append(verbs, record.Verb)
	}
	want := []string{activity.VerbScopeCreated, activity.VerbScopeCreated, activity.VerbScopeDestroyed}
	if len(verbs) != len(want) {
		t.Fatalf("expected verbs %v, got %v", want, verbs)
	}
	for i := range want {
		if verbs[i] != want[i] {
			t.Fatalf("expected verbs %v, got %v", want, verbs)
		}
	}
	if sink.records[2].ObjectID != "2" {
		t.Fatalf("expected destroyed child id 2, got %q", sink.records[2].ObjectID)
	}
	if sink.records[2].Data["sequence"] != uint64(3) {
		t.Fatalf("expected emitter sequence 3, got %v", sink.records[2].Data["sequence"])
	}
}
