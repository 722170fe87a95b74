package activity

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultChannel is stamped on events emitted without a channel.
const DefaultChannel = "scope"

// Config controls emitter defaults.
type Config struct {
	Enabled bool
	Channel string
	// Now stamps OccurredAt on events that carry none. Defaults to time.Now.
	Now func() time.Time
}

// Emitter stamps channel, sequence and time on events before fanning them
// out. It is safe for concurrent use.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	now     func() time.Time
	seq     atomic.Uint64
}

// NewEmitter constructs an emitter. Nil hooks are dropped; an emitter with no
// hooks left is disabled.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	var kept Hooks
	for _, hook := range hooks {
		if hook != nil {
			kept = append(kept, hook)
		}
	}
	return &Emitter{
		hooks:   kept,
		enabled: cfg.Enabled && len(kept) > 0,
		channel: channel,
		now:     now,
	}
}

// Enabled reports whether Emit reaches any hook.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit stamps and forwards event. Explicit channels and timestamps are kept.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if err := event.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	event.Sequence = e.seq.Add(1)
	return e.hooks.Notify(ctx, event)
}

// Emitted returns the number of events stamped so far.
func (e *Emitter) Emitted() uint64 {
	if e == nil {
		return 0
	}
	return e.seq.Load()
}
