// Package store is the durable attempt store: a keyed, TTL-aware snapshot
// layer the engine writes on every mutation and reads on resume. It knows
// nothing about timers or assessments beyond the snapshot it persists.
package store

import (
	"context"

	"github.com/quivio/attempt-engine/internal/model"
)

// Store persists attempt snapshots keyed by the deterministic attempt key.
// Load returns (nil, nil) when no resumable record exists; a record past the
// staleness window counts as absent and is dropped on read. Later writes
// overwrite earlier ones, so at most one record per key exists.
type Store interface {
	Save(ctx context.Context, key string, s *model.AttemptSession) error
	Load(ctx context.Context, key string) (*model.AttemptSession, error)
	Delete(ctx context.Context, key string) error
}
