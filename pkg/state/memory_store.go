package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. Snapshots round-trip through JSON so loads never alias what
// was saved and values match what SQLiteStore returns.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	payload []byte
	meta    Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	snapshot, err := decodeSnapshot(record.payload)
	if err != nil {
		return nil, Meta{}, false, err
	}
	return snapshot, cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, snapshot map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.records[key]
	if err := checkETag(meta.ETag, existing.meta.ETag); err != nil {
		return cloneMeta(existing.meta), err
	}
	stored := stamp(payload, Meta{Extra: meta.Extra}, s.now())
	s.records[key] = memoryRecord{payload: payload, meta: stored}
	return cloneMeta(stored), nil
}

// Len reports how many snapshots are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
