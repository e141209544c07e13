package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/model"
)

func testSession(remaining int, persistedAt time.Time) *model.AttemptSession {
	return &model.AttemptSession{
		AssessmentID:     uuid.New(),
		UserID:           7,
		Answers:          map[int64]model.AnswerValue{1: model.ScalarAnswer("A")},
		RemainingSeconds: remaining,
		StartedAt:        persistedAt.UnixMilli(),
		LastPersistedAt:  persistedAt.UnixMilli(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	st := NewMemoryStore(clk)

	sess := testSession(300, now)
	if err := st.Save(ctx, "k1", sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil for existing record")
	}
	if got.RemainingSeconds != 300 || got.Answers[1].Scalar != "A" {
		t.Errorf("loaded session mismatch: %+v", got)
	}
}

func TestMemoryStoreAbsentKey(t *testing.T) {
	st := NewMemoryStore(clock.NewFake(time.Now()))

	got, err := st.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load of missing key = %+v, want nil", got)
	}
}

func TestMemoryStoreStaleRecordTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	st := NewMemoryStore(clk)

	if err := st.Save(ctx, "k1", testSession(300, start)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Jump past the staleness window; the record must read as absent and be
	// dropped.
	clk.Set(start.Add(model.StalenessWindow + time.Minute))

	got, err := st.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("stale record was resumed: %+v", got)
	}
	if st.Len() != 0 {
		t.Errorf("stale record not dropped, %d records remain", st.Len())
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	st := NewMemoryStore(clock.NewFake(now))

	first := testSession(300, now)
	second := testSession(200, now)
	if err := st.Save(ctx, "k1", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Save(ctx, "k1", second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := st.Load(ctx, "k1")
	if got.RemainingSeconds != 200 {
		t.Errorf("later write did not win: remaining = %d", got.RemainingSeconds)
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1 record per key", st.Len())
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	st := NewMemoryStore(clock.NewFake(now))

	_ = st.Save(ctx, "k1", testSession(300, now))
	if err := st.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, _ := st.Load(ctx, "k1")
	if got != nil {
		t.Errorf("Load after delete = %+v, want nil", got)
	}
}
