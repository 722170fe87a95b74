package activity

import (
	"strings"
	"time"
)

// Verbs emitted for scope and snapshot lifecycle activity.
const (
	VerbScopeCreated   = "scope.created"
	VerbScopeDestroyed = "scope.destroyed"
	VerbStateSaved     = "state.saved"
	VerbStateRestored  = "state.restored"
)

// ScopeEventInput describes the fields of a scope lifecycle event.
type ScopeEventInput struct {
	ActorID    string
	TenantID   string
	ObjectID   string
	ParentID   string
	RootID     string
	Isolated   bool
	Watchers   int
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// SnapshotEventInput describes the fields of a snapshot persistence event.
type SnapshotEventInput struct {
	ActorID    string
	TenantID   string
	Domain     string
	Key        string
	SnapshotID string
	ETag       string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildScopeCreatedEvent constructs a normalized activity event for a new
// scope node.
func BuildScopeCreatedEvent(input ScopeEventInput) Event {
	return buildScopeEvent(VerbScopeCreated, input)
}

// BuildScopeDestroyedEvent constructs a normalized activity event for a
// destroyed scope node.
func BuildScopeDestroyedEvent(input ScopeEventInput) Event {
	return buildScopeEvent(VerbScopeDestroyed, input)
}

// BuildStateSavedEvent constructs an activity event describing a persisted
// snapshot.
func BuildStateSavedEvent(input SnapshotEventInput) Event {
	return buildSnapshotEvent(VerbStateSaved, input)
}

// BuildStateRestoredEvent constructs an activity event describing a snapshot
// restored into a node.
func BuildStateRestoredEvent(input SnapshotEventInput) Event {
	return buildSnapshotEvent(VerbStateRestored, input)
}

func buildScopeEvent(verb string, input ScopeEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.ParentID != "" {
		metadata = ensureMetadata(metadata)
		metadata["parent_id"] = strings.TrimSpace(input.ParentID)
	}
	if input.RootID != "" {
		metadata = ensureMetadata(metadata)
		metadata["root_id"] = strings.TrimSpace(input.RootID)
	}
	if input.Isolated {
		metadata = ensureMetadata(metadata)
		metadata["isolated"] = true
	}
	if input.Watchers > 0 {
		metadata = ensureMetadata(metadata)
		metadata["watchers"] = input.Watchers
	}

	objectID := strings.TrimSpace(input.ObjectID)
	if objectID == "" {
		objectID = "scope"
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: "scope",
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildSnapshotEvent(verb string, input SnapshotEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Domain != "" {
		metadata = ensureMetadata(metadata)
		metadata["domain"] = strings.TrimSpace(input.Domain)
	}
	if input.Key != "" {
		metadata = ensureMetadata(metadata)
		metadata["key"] = strings.TrimSpace(input.Key)
	}
	if input.ETag != "" {
		metadata = ensureMetadata(metadata)
		metadata["etag"] = strings.TrimSpace(input.ETag)
	}

	objectID := strings.TrimSpace(input.SnapshotID)
	if objectID == "" {
		objectID = strings.Trim(strings.TrimSpace(input.Domain)+"/"+strings.TrimSpace(input.Key), "/")
	}
	if objectID == "" {
		objectID = "snapshot"
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: "scope.snapshot",
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
