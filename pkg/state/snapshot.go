package state

import (
	"context"
	"errors"
	"fmt"

	scope "github.com/goliatone/go-scope"
	"github.com/goliatone/go-scope/pkg/activity"
)

var ErrStoreRequired = errors.New("state: store is required")

var ErrNodeRequired = errors.New("state: node is required")

// Option configures Save, Restore and Mutate.
type Option func(*config)

type config struct {
	etag     string
	extra    map[string]string
	actorID  string
	tenantID string
	emitter  *activity.Emitter
}

// WithETag makes the save conditional on the stored ETag matching etag.
func WithETag(etag string) Option {
	return func(c *config) {
		c.etag = etag
	}
}

// WithExtra records caller metadata alongside the snapshot.
func WithExtra(extra map[string]string) Option {
	return func(c *config) {
		c.extra = extra
	}
}

// WithActivity emits state.saved / state.restored events through hooks.
func WithActivity(hooks activity.Hooks, channel string) Option {
	return func(c *config) {
		c.emitter = activity.NewEmitter(hooks, activity.Config{Enabled: true, Channel: channel})
	}
}

// WithActor stamps emitted activity with actor and tenant identifiers.
func WithActor(actorID, tenantID string) Option {
	return func(c *config) {
		c.actorID = actorID
		c.tenantID = tenantID
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// Save exports every key visible from node and persists it under ref.
func Save(ctx context.Context, store Store, ref Ref, node *scope.Node, opts ...Option) (Meta, error) {
	if store == nil {
		return Meta{}, ErrStoreRequired
	}
	if node == nil {
		return Meta{}, ErrNodeRequired
	}
	cfg := newConfig(opts)

	meta, err := store.Save(ctx, ref, node.Export(), Meta{ETag: cfg.etag, Extra: cfg.extra})
	if err != nil {
		return meta, fmt.Errorf("state: save %s/%s: %w", ref.Domain, ref.Key, err)
	}
	cfg.emit(ctx, activity.BuildStateSavedEvent, ref, meta)
	return meta, nil
}

// Restore loads the snapshot under ref and assigns each top-level key on
// node. Keys absent from the snapshot are left alone; nested objects replace
// the contents of existing nested nodes in place, so watchers on them survive.
// ok is false when nothing is stored under ref.
func Restore(ctx context.Context, store Store, ref Ref, node *scope.Node, opts ...Option) (meta Meta, ok bool, err error) {
	if store == nil {
		return Meta{}, false, ErrStoreRequired
	}
	if node == nil {
		return Meta{}, false, ErrNodeRequired
	}
	cfg := newConfig(opts)

	snapshot, meta, ok, err := store.Load(ctx, ref)
	if err != nil {
		return Meta{}, false, fmt.Errorf("state: load %s/%s: %w", ref.Domain, ref.Key, err)
	}
	if !ok {
		return Meta{}, false, nil
	}
	node.Assign(snapshot)
	cfg.emit(ctx, activity.BuildStateRestoredEvent, ref, meta)
	return meta, true, nil
}

// Mutator edits a loaded snapshot in place.
type Mutator func(snapshot map[string]any) error

// Mutate loads the snapshot under ref, applies fn and saves the result
// guarded by the loaded ETag. A missing snapshot starts empty.
func Mutate(ctx context.Context, store Store, ref Ref, fn Mutator, opts ...Option) (Meta, error) {
	if store == nil {
		return Meta{}, ErrStoreRequired
	}
	if fn == nil {
		return Meta{}, fmt.Errorf("state: mutator is required")
	}
	cfg := newConfig(opts)

	snapshot, loaded, ok, err := store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("state: load %s/%s: %w", ref.Domain, ref.Key, err)
	}
	if !ok {
		snapshot = map[string]any{}
	}
	if cfg.etag != "" && cfg.etag != loaded.ETag {
		return loaded, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, cfg.etag, loaded.ETag)
	}
	if err := fn(snapshot); err != nil {
		return loaded, err
	}

	extra := cfg.extra
	if extra == nil {
		extra = loaded.Extra
	}
	meta, err := store.Save(ctx, ref, snapshot, Meta{ETag: loaded.ETag, Extra: extra})
	if err != nil {
		return meta, fmt.Errorf("state: save %s/%s: %w", ref.Domain, ref.Key, err)
	}
	cfg.emit(ctx, activity.BuildStateSavedEvent, ref, meta)
	return meta, nil
}

func (c config) emit(ctx context.Context, build func(activity.SnapshotEventInput) activity.Event, ref Ref, meta Meta) {
	if !c.emitter.Enabled() {
		return
	}
	event := build(activity.SnapshotEventInput{
		ActorID:    c.actorID,
		TenantID:   c.tenantID,
		Domain:     ref.Domain,
		Key:        ref.Key,
		SnapshotID: meta.SnapshotID,
		ETag:       meta.ETag,
		OccurredAt: meta.UpdatedAt,
	})
	// Activity is best effort; persistence already succeeded.
	_ = c.emitter.Emit(ctx, event)
}
