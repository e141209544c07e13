package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/quivio/attempt-engine/internal/platform"
	"github.com/quivio/attempt-engine/internal/store"
	"github.com/rs/zerolog"
)

type fakePlatform struct {
	calls  int
	lastID uuid.UUID
	last   platform.SubmitRequest
	result *platform.SubmitResult
	err    error
}

func (f *fakePlatform) SubmitAttempt(ctx context.Context, assessmentID uuid.UUID, userID int, req platform.SubmitRequest) (*platform.SubmitResult, error) {
	f.calls++
	f.lastID = assessmentID
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeOutcomes struct {
	outcome *model.SubmissionOutcome
}

func (f *fakeOutcomes) GetByUserAndAssessment(ctx context.Context, userID int, assessmentID uuid.UUID) (*model.SubmissionOutcome, error) {
	if f.outcome == nil {
		return nil, errors.New("not found")
	}
	return f.outcome, nil
}

func testDef() *model.Assessment {
	return &model.Assessment{
		ID:               uuid.New(),
		Kind:             model.AssessmentKindQuiz,
		TimeLimitMinutes: 10,
		Sections: []model.Section{{
			Groups: []model.QuestionGroup{{
				ID: 1,
				Questions: []model.Question{
					{ID: 10, Type: model.QuestionTypeChoice, Points: 1},
					{ID: 20, Type: model.QuestionTypeMatching, Points: 2},
					{ID: 30, Type: model.QuestionTypeText, Points: 1},
				},
			}},
		}},
	}
}

func testFixture(fp *fakePlatform, outcomes OutcomeReader) (*Reconciler, *store.MemoryStore, *clock.Fake, *model.Assessment, *model.AttemptSession, string) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore(clk)
	def := testDef()
	sess := model.NewAttemptSession(def, 42, clk.Now())
	key := config.CacheKey.AttemptSnapshotKey(42, def.ID)
	_ = st.Save(context.Background(), key, sess)
	r := New(fp, st, nil, outcomes, clk, zerolog.New(io.Discard))
	return r, st, clk, def, sess, key
}

func TestReconcileSuccess(t *testing.T) {
	best := 8.0
	fp := &fakePlatform{result: &platform.SubmitResult{
		Score:             7,
		TotalPoints:       10,
		CanRetake:         true,
		RemainingAttempts: 2,
		BestScore:         &best,
	}}
	r, st, clk, def, sess, _ := testFixture(fp, nil)

	sess.SetAnswer(10, model.ScalarAnswer("A"))
	clk.Set(clk.Now().Add(90 * time.Second))

	outcome, err := r.Reconcile(context.Background(), sess, def, model.TriggerManual)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.Score != 7 || outcome.TotalPoints != 10 {
		t.Errorf("outcome = %+v, want score 7/10", outcome)
	}
	if !outcome.Retake.CanRetake || outcome.Retake.RemainingAttempts != 2 || *outcome.Retake.BestScore != 8 {
		t.Errorf("retake policy = %+v", outcome.Retake)
	}
	if outcome.Trigger != model.TriggerManual || outcome.PriorResult {
		t.Errorf("outcome metadata = %+v", outcome)
	}
	if fp.last.TimeSpentSeconds != 90 {
		t.Errorf("time spent = %d, want 90", fp.last.TimeSpentSeconds)
	}
	if st.Len() != 0 {
		t.Error("durable record not cleared on success")
	}
}

func TestReconcileAbandonSubmitsEmptyAnswerList(t *testing.T) {
	fp := &fakePlatform{result: &platform.SubmitResult{Score: 0, TotalPoints: 4}}
	r, st, _, def, sess, _ := testFixture(fp, nil)

	// Answers were recorded, but an abandoned attempt submits none of them.
	sess.SetAnswer(10, model.ScalarAnswer("A"))
	sess.SetAnswer(30, model.ScalarAnswer("free text"))

	if _, err := r.Reconcile(context.Background(), sess, def, model.TriggerAbandon); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if fp.last.Answers == nil {
		t.Fatal("answer list omitted, want explicit empty list")
	}
	if len(fp.last.Answers) != 0 {
		t.Errorf("abandon submitted %d answers, want 0", len(fp.last.Answers))
	}
	if st.Len() != 0 {
		t.Error("durable record not cleared")
	}
}

func TestReconcileAnswersInDefinitionOrder(t *testing.T) {
	fp := &fakePlatform{result: &platform.SubmitResult{Score: 3, TotalPoints: 4}}
	r, _, _, def, sess, _ := testFixture(fp, nil)

	// Answered out of order, question 20 skipped entirely.
	sess.SetAnswer(30, model.ScalarAnswer("later"))
	sess.SetAnswer(10, model.ScalarAnswer("first"))

	if _, err := r.Reconcile(context.Background(), sess, def, model.TriggerTimeout); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(fp.last.Answers) != 2 {
		t.Fatalf("submitted %d answers, want the 2 answered", len(fp.last.Answers))
	}
	if fp.last.Answers[0].QuestionID != 10 || fp.last.Answers[1].QuestionID != 30 {
		t.Errorf("answer order = %d,%d, want definition order 10,30",
			fp.last.Answers[0].QuestionID, fp.last.Answers[1].QuestionID)
	}
	if fp.last.Answers[0].AnswerPayload != "first" {
		t.Errorf("payload = %q, want %q", fp.last.Answers[0].AnswerPayload, "first")
	}
}

func TestReconcileGroupedAnswerPayload(t *testing.T) {
	fp := &fakePlatform{result: &platform.SubmitResult{Score: 2, TotalPoints: 4}}
	r, _, _, def, sess, _ := testFixture(fp, nil)

	sess.SetAnswer(20, model.GroupedAnswer(map[string]string{"1": "b", "0": "a"}))

	if _, err := r.Reconcile(context.Background(), sess, def, model.TriggerManual); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := fp.last.Answers[0].AnswerPayload; got != `{"0":"a","1":"b"}` {
		t.Errorf("grouped payload = %q", got)
	}
}

func TestReconcileTransientFailureRetainsRecord(t *testing.T) {
	fp := &fakePlatform{err: errors.New("upstream 502")}
	r, st, _, def, sess, _ := testFixture(fp, nil)

	_, err := r.Reconcile(context.Background(), sess, def, model.TriggerManual)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Errorf("transient error reported non-retryable: %v", err)
	}
	if st.Len() != 1 {
		t.Error("durable record cleared on transient failure")
	}
}

func TestReconcileAlreadySubmittedSurfacesPriorResult(t *testing.T) {
	prior := &model.SubmissionOutcome{Score: 9, TotalPoints: 10, Trigger: model.TriggerManual}
	fp := &fakePlatform{err: platform.ErrAlreadySubmitted}
	r, st, _, def, sess, _ := testFixture(fp, &fakeOutcomes{outcome: prior})

	outcome, err := r.Reconcile(context.Background(), sess, def, model.TriggerTimeout)
	if err != nil {
		t.Fatalf("already-submitted must be success-equivalent, got %v", err)
	}
	if !outcome.PriorResult {
		t.Error("prior result not marked")
	}
	if outcome.Score != 9 {
		t.Errorf("prior score = %v, want 9", outcome.Score)
	}
	if st.Len() != 0 {
		t.Error("durable record not cleared")
	}
}

func TestReconcileAlreadySubmittedWithoutStoredOutcome(t *testing.T) {
	fp := &fakePlatform{err: platform.ErrAlreadySubmitted}
	r, _, _, def, sess, _ := testFixture(fp, &fakeOutcomes{})

	outcome, err := r.Reconcile(context.Background(), sess, def, model.TriggerManual)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	// A bare marker is enough for the UI to route to results and refetch.
	if !outcome.PriorResult || outcome.UserID != 42 || outcome.AssessmentID != def.ID {
		t.Errorf("bare prior marker = %+v", outcome)
	}
}

func TestReconcileExpiredClearsAndDoesNotRetry(t *testing.T) {
	fp := &fakePlatform{err: platform.ErrAssessmentExpired}
	r, st, _, def, sess, _ := testFixture(fp, nil)

	_, err := r.Reconcile(context.Background(), sess, def, model.TriggerManual)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if IsRetryable(err) {
		t.Error("expired verdict reported retryable")
	}
	if st.Len() != 0 {
		t.Error("durable record retained after expired verdict")
	}
}
