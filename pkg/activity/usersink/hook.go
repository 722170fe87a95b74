package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-scope/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards scope lifecycle and snapshot activity to a go-users
// ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// Verbs limits forwarding to the listed verbs. Empty forwards every verb.
	Verbs []string
	// Now stamps records that carry no occurrence time. Defaults to time.Now.
	Now func() time.Time
}

// ScopeLifecycle returns a hook that forwards only scope.created and
// scope.destroyed events.
func ScopeLifecycle(sink usertypes.ActivitySink) Hook {
	return Hook{Sink: sink, Verbs: []string{activity.VerbScopeCreated, activity.VerbScopeDestroyed}}
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	if event.Validate() != nil {
		return nil
	}
	normalized := event.Normalized()
	if !h.accepts(normalized.Verb) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		UserID:     parseUUID(normalized.UserID),
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       cloneMap(normalized.Metadata),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = h.now()
	}
	// Actor ids that are not UUIDs would be lost to uuid.Nil; keep them.
	if record.ActorID == uuid.Nil && normalized.ActorID != "" {
		record.Data = withData(record.Data, "actor_ref", normalized.ActorID)
	}
	if normalized.Sequence > 0 {
		record.Data = withData(record.Data, "sequence", normalized.Sequence)
	}

	return h.Sink.Log(ctx, record)
}

func (h Hook) accepts(verb string) bool {
	if len(h.Verbs) == 0 {
		return true
	}
	for _, allowed := range h.Verbs {
		if strings.EqualFold(strings.TrimSpace(allowed), verb) {
			return true
		}
	}
	return false
}

func (h Hook) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func parseUUID(input string) uuid.UUID {
	value := strings.TrimSpace(input)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func withData(data map[string]any, key string, value any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	data[key] = value
	return data
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
