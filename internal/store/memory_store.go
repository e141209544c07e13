package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/model"
)

// MemoryStore is an in-process Store used in tests. Snapshots are stored as
// JSON bytes so the round-trip matches the Redis implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	clk     clock.Clock
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte), clk: clk}
}

func (s *MemoryStore) Save(ctx context.Context, key string, sess *model.AttemptSession) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[key] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*model.AttemptSession, error) {
	s.mu.Lock()
	b, ok := s.records[key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var sess model.AttemptSession
	if err := json.Unmarshal(b, &sess); err != nil {
		s.Delete(ctx, key)
		return nil, nil
	}

	if sess.Stale(s.clk.Now()) {
		s.Delete(ctx, key)
		return nil, nil
	}

	return &sess, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live records. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
