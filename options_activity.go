package scope

import (
	"context"
	"strconv"

	"github.com/goliatone/go-scope/pkg/activity"
)

// WithActivityHooks attaches activity hooks notified when scope nodes are
// created and destroyed. Hooks are cloned and nil entries dropped to preserve
// immutability.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *runtimeConfig) {
		cfg.activityHooks = normalized
	}
}

// WithActivityChannel overrides the channel stamped on emitted activity.
func WithActivityChannel(channel string) Option {
	return func(cfg *runtimeConfig) {
		cfg.activityChannel = channel
	}
}

// ActivityHooks returns a cloned slice of the configured activity hooks. The
// returned slice can be safely mutated by the caller.
func (rt *Runtime) ActivityHooks() activity.Hooks {
	if rt == nil {
		return nil
	}
	return cloneActivityHooks(rt.cfg.activityHooks)
}

func (rt *Runtime) emitScopeActivity(verb string, n *Node) {
	if !rt.emitter.Enabled() {
		return
	}
	input := activity.ScopeEventInput{
		ObjectID: strconv.FormatInt(n.id, 10),
		RootID:   strconv.FormatInt(n.root.id, 10),
		Watchers: len(n.owned),
	}
	if n.parent != nil {
		input.ParentID = strconv.FormatInt(n.parent.id, 10)
	}
	if n.proto == nil && n.parent != nil {
		input.Isolated = true
	}
	var event activity.Event
	if verb == activity.VerbScopeDestroyed {
		event = activity.BuildScopeDestroyedEvent(input)
	} else {
		event = activity.BuildScopeCreatedEvent(input)
	}
	if err := rt.emitter.Emit(context.Background(), event); err != nil {
		rt.logger.Warn("scope activity hook failed", "verb", verb, "node", n.id, "error", err)
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
