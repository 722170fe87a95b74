package state

import (
	"errors"
	"testing"
	"time"
)

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		ref     Ref
		want    string
		wantErr bool
	}{
		{name: "domain and key", ref: Ref{Domain: "app", Key: "main"}, want: "app/main"},
		{name: "trims whitespace", ref: Ref{Domain: " app ", Key: " user/42 "}, want: "app/user/42"},
		{name: "missing domain", ref: Ref{Key: "main"}, wantErr: true},
		{name: "missing key", ref: Ref{Domain: "app"}, wantErr: true},
		{name: "slash in domain", ref: Ref{Domain: "a/b", Key: "main"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Identifier()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRef) {
					t.Fatalf("expected ErrInvalidRef, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStampDerivesETagFromPayload(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := stamp([]byte(`{"a":1}`), Meta{}, now)
	second := stamp([]byte(`{"a":1}`), Meta{}, now)
	third := stamp([]byte(`{"a":2}`), Meta{}, now)

	if first.ETag != second.ETag {
		t.Fatalf("expected identical payloads to share an etag")
	}
	if first.ETag == third.ETag {
		t.Fatalf("expected different payloads to differ")
	}
	if first.SnapshotID == "" || first.SnapshotID == second.SnapshotID {
		t.Fatalf("expected a fresh snapshot id per save, got %q and %q", first.SnapshotID, second.SnapshotID)
	}
	if !first.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %v, got %v", now, first.UpdatedAt)
	}
}

func TestCheckETag(t *testing.T) {
	if err := checkETag("", "abc"); err != nil {
		t.Fatalf("empty expectation should pass: %v", err)
	}
	if err := checkETag("abc", "abc"); err != nil {
		t.Fatalf("matching etag should pass: %v", err)
	}
	if err := checkETag("abc", "def"); !errors.Is(err, ErrETagMismatch) {
		t.Fatalf("expected ErrETagMismatch, got %v", err)
	}
	if err := checkETag("abc", ""); !errors.Is(err, ErrETagMismatch) {
		t.Fatalf("expected mismatch against a missing record, got %v", err)
	}
}
