package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies one persisted snapshot inside a domain.
type Ref struct {
	Domain string
	Key    string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (snapshot map[string]any, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot map[string]any, meta Meta) (Meta, error)
}

// Identifier returns the canonical storage key for r.
func (r Ref) Identifier() (string, error) {
	domain := strings.TrimSpace(r.Domain)
	key := strings.TrimSpace(r.Key)
	if domain == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidRef)
	}
	if key == "" {
		return "", fmt.Errorf("%w: key is required for domain %q", ErrInvalidRef, domain)
	}
	if strings.Contains(domain, "/") {
		return "", fmt.Errorf("%w: domain %q must not contain '/'", ErrInvalidRef, domain)
	}
	return domain + "/" + key, nil
}

// stamp derives the metadata recorded for a new save. The ETag is a digest of
// the encoded payload, so identical content yields identical ETags.
func stamp(payload []byte, requested Meta, now time.Time) Meta {
	out := cloneMeta(requested)
	if out.SnapshotID == "" {
		out.SnapshotID = uuid.NewString()
	}
	sum := sha256.Sum256(payload)
	out.ETag = hex.EncodeToString(sum[:8])
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = now.UTC()
	}
	return out
}

// checkETag compares the ETag a caller expects with the stored one.
func checkETag(expected, stored string) error {
	if expected == "" || expected == stored {
		return nil
	}
	return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected, stored)
}

func encodeSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return json.Marshal(snapshot)
}

func decodeSnapshot(payload []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
