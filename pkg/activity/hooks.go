package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrIncompleteEvent is returned for events missing a verb or object
// identity. Hooks are never called with such events.
var ErrIncompleteEvent = errors.New("activity: incomplete event")

// Event describes a scope or snapshot lifecycle occurrence. IDs are strings
// so callers are not tied to a particular identifier type.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	// Sequence is stamped by the Emitter and increases per emitter.
	Sequence   uint64
	Metadata   map[string]any
	OccurredAt time.Time
}

// Normalized returns a copy with identifiers trimmed and metadata cloned.
func (e Event) Normalized() Event {
	out := e
	out.Verb = strings.TrimSpace(e.Verb)
	out.ActorID = strings.TrimSpace(e.ActorID)
	out.UserID = strings.TrimSpace(e.UserID)
	out.TenantID = strings.TrimSpace(e.TenantID)
	out.ObjectType = strings.TrimSpace(e.ObjectType)
	out.ObjectID = strings.TrimSpace(e.ObjectID)
	out.Channel = strings.TrimSpace(e.Channel)
	out.Metadata = cloneMap(e.Metadata)
	return out
}

// Validate reports the required fields the event lacks.
func (e Event) Validate() error {
	var missing []string
	if strings.TrimSpace(e.Verb) == "" {
		missing = append(missing, "verb")
	}
	if strings.TrimSpace(e.ObjectType) == "" {
		missing = append(missing, "object_type")
	}
	if strings.TrimSpace(e.ObjectID) == "" {
		missing = append(missing, "object_id")
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrIncompleteEvent, strings.Join(missing, ", "))
}

// ActivityHook receives validated, normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify calls fn.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans an event out to every hook in order.
type Hooks []ActivityHook

// Enabled reports whether there is any hook to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify validates and normalizes event, then calls every hook. A failing or
// panicking hook does not stop the others; their errors are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	if err := event.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	normalized := event.Normalized()

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := notifyHook(ctx, hook, normalized); err != nil {
			errs = append(errs, fmt.Errorf("activity hook %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func notifyHook(ctx context.Context, hook ActivityHook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	// hooks receive their own metadata map
	event.Metadata = cloneMap(event.Metadata)
	return hook.Notify(ctx, event)
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
