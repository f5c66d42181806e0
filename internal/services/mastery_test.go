package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type fakeMasteryRepo struct {
	rows map[string]*types.ConceptMastery

	getErr  error
	saveErr error
	listErr error
	due     []*types.ConceptMastery
}

func newFakeMasteryRepo() *fakeMasteryRepo {
	return &fakeMasteryRepo{rows: map[string]*types.ConceptMastery{}}
}

func masteryKey(userID, conceptID uuid.UUID) string {
	return userID.String() + "/" + conceptID.String()
}

func (f *fakeMasteryRepo) GetByUserAndConcept(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[masteryKey(userID, conceptID)], nil
}

func (f *fakeMasteryRepo) GetByUserAndConceptIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, conceptIDs []uuid.UUID) ([]*types.ConceptMastery, error) {
	var out []*types.ConceptMastery
	for _, id := range conceptIDs {
		if m, ok := f.rows[masteryKey(userID, id)]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMasteryRepo) GetByUserAndLanguage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string) ([]*types.ConceptMastery, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*types.ConceptMastery
	for _, m := range f.rows {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMasteryRepo) GetDueForReview(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string, now time.Time, limit int) ([]*types.ConceptMastery, error) {
	if limit > 0 && len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeMasteryRepo) GetByConcept(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.ConceptMastery, error) {
	var out []*types.ConceptMastery
	for _, m := range f.rows {
		if m.ConceptID == conceptID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMasteryRepo) Save(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.rows[masteryKey(row.UserID, row.ConceptID)] = row
	return nil
}

func newTestMasteryService(repo *fakeMasteryRepo, now time.Time) *masteryService {
	svc := NewMasteryService(repo, logger.NewNop()).(*masteryService)
	svc.now = func() time.Time { return now }
	return svc
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecordAttemptFirstCorrectEasy(t *testing.T) {
	repo := newFakeMasteryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestMasteryService(repo, now)

	userID, conceptID := uuid.New(), uuid.New()
	m, err := svc.RecordAttempt(context.Background(), userID, conceptID, true, 0.2)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	if m.AttemptsCount != 1 || m.CorrectAttempts != 1 {
		t.Fatalf("attempts: want=(1,1) got=(%d,%d)", m.AttemptsCount, m.CorrectAttempts)
	}
	if !almostEqual(m.EaseFactor, 2.6) {
		t.Fatalf("ease: want=2.6 got=%v", m.EaseFactor)
	}
	if m.RepetitionInterval != 6 {
		t.Fatalf("interval: want=6 got=%d", m.RepetitionInterval)
	}
	if !almostEqual(m.MasteryScore, 0.1) {
		t.Fatalf("mastery: want=0.1 got=%v", m.MasteryScore)
	}
	wantReview := now.AddDate(0, 0, 6)
	if m.NextReview == nil || !m.NextReview.Equal(wantReview) {
		t.Fatalf("next review: want=%v got=%v", wantReview, m.NextReview)
	}
}

func TestRecordAttemptSecondCorrectNeutral(t *testing.T) {
	repo := newFakeMasteryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestMasteryService(repo, now)
	userID, conceptID := uuid.New(), uuid.New()

	if _, err := svc.RecordAttempt(context.Background(), userID, conceptID, true, 0.2); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	m, err := svc.RecordAttempt(context.Background(), userID, conceptID, true, 0.5)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	if m.AttemptsCount != 2 || m.CorrectAttempts != 2 {
		t.Fatalf("attempts: want=(2,2) got=(%d,%d)", m.AttemptsCount, m.CorrectAttempts)
	}
	// Mid-range difficulty leaves ease untouched.
	if !almostEqual(m.EaseFactor, 2.6) {
		t.Fatalf("ease: want=2.6 got=%v", m.EaseFactor)
	}
	if m.RepetitionInterval != 15 { // floor(6 * 2.6)
		t.Fatalf("interval: want=15 got=%d", m.RepetitionInterval)
	}
}

func TestRecordAttemptThirdIncorrectResets(t *testing.T) {
	repo := newFakeMasteryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestMasteryService(repo, now)
	userID, conceptID := uuid.New(), uuid.New()
	ctx := context.Background()

	if _, err := svc.RecordAttempt(ctx, userID, conceptID, true, 0.2); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := svc.RecordAttempt(ctx, userID, conceptID, true, 0.5); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	m, err := svc.RecordAttempt(ctx, userID, conceptID, false, 0.5)
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}

	if m.AttemptsCount != 3 || m.CorrectAttempts != 2 {
		t.Fatalf("attempts: want=(3,2) got=(%d,%d)", m.AttemptsCount, m.CorrectAttempts)
	}
	if !almostEqual(m.EaseFactor, 2.4) {
		t.Fatalf("ease: want=2.4 got=%v", m.EaseFactor)
	}
	if m.RepetitionInterval != 1 {
		t.Fatalf("interval: want=1 got=%d", m.RepetitionInterval)
	}
	if !almostEqual(m.MasteryScore, 0.2) { // (2/3) * (3/10)
		t.Fatalf("mastery: want=0.2 got=%v", m.MasteryScore)
	}
}

func TestApplyAttemptEaseBounds(t *testing.T) {
	now := time.Now()

	high := &types.ConceptMastery{RepetitionInterval: 1, EaseFactor: 3.95}
	ApplyAttempt(high, true, 0.1, now)
	if !almostEqual(high.EaseFactor, 4.0) {
		t.Fatalf("ease cap: want=4.0 got=%v", high.EaseFactor)
	}

	low := &types.ConceptMastery{RepetitionInterval: 1, EaseFactor: 1.35}
	ApplyAttempt(low, false, 0.5, now)
	if !almostEqual(low.EaseFactor, 1.3) {
		t.Fatalf("ease floor: want=1.3 got=%v", low.EaseFactor)
	}

	hard := &types.ConceptMastery{RepetitionInterval: 1, EaseFactor: 1.4}
	ApplyAttempt(hard, true, 0.9, now)
	if !almostEqual(hard.EaseFactor, 1.3) {
		t.Fatalf("hard-correct ease floor: want=1.3 got=%v", hard.EaseFactor)
	}
}

func TestApplyAttemptMonotonicIntervalGrowth(t *testing.T) {
	m := &types.ConceptMastery{RepetitionInterval: 1, EaseFactor: 2.5}
	now := time.Now()
	prev := m.RepetitionInterval
	for i := 0; i < 8; i++ {
		ApplyAttempt(m, true, 0.5, now)
		if m.RepetitionInterval < prev {
			t.Fatalf("interval shrank on success: %d -> %d", prev, m.RepetitionInterval)
		}
		prev = m.RepetitionInterval
	}
}

func TestApplyAttemptClampsDifficultyViaService(t *testing.T) {
	repo := newFakeMasteryRepo()
	svc := newTestMasteryService(repo, time.Now())
	userID, conceptID := uuid.New(), uuid.New()

	// Out-of-range difficulty clamps to 1.0, which counts as hard-correct.
	m, err := svc.RecordAttempt(context.Background(), userID, conceptID, true, 3.5)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if !almostEqual(m.EaseFactor, 2.35) {
		t.Fatalf("ease after clamped hard attempt: want=2.35 got=%v", m.EaseFactor)
	}
}

func TestApplyAttemptMasteryScoreBounded(t *testing.T) {
	m := &types.ConceptMastery{RepetitionInterval: 1, EaseFactor: 2.5}
	now := time.Now()
	for i := 0; i < 30; i++ {
		ApplyAttempt(m, true, 0.5, now)
		if m.MasteryScore < 0 || m.MasteryScore > 1 {
			t.Fatalf("mastery score out of bounds: %v", m.MasteryScore)
		}
	}
	if !almostEqual(m.MasteryScore, 1.0) {
		t.Fatalf("30/30 correct mastery: want=1.0 got=%v", m.MasteryScore)
	}
}

func TestNeedsReview(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !NeedsReview(&types.ConceptMastery{}, now) {
		t.Fatalf("unset next_review should need review")
	}
	past := now.Add(-time.Hour)
	if !NeedsReview(&types.ConceptMastery{NextReview: &past}, now) {
		t.Fatalf("past next_review should need review")
	}
	if !NeedsReview(&types.ConceptMastery{NextReview: &now}, now) {
		t.Fatalf("next_review == now should need review")
	}
	future := now.Add(time.Hour)
	if NeedsReview(&types.ConceptMastery{NextReview: &future}, now) {
		t.Fatalf("future next_review should not need review")
	}
}

func TestIsMasteredAttemptFloor(t *testing.T) {
	lucky := &types.ConceptMastery{MasteryScore: 0.9, AttemptsCount: 4, CorrectAttempts: 4}
	if IsMastered(lucky, 0.8) {
		t.Fatalf("4 attempts should not qualify as mastered")
	}
	solid := &types.ConceptMastery{MasteryScore: 0.85, AttemptsCount: 12, CorrectAttempts: 11}
	if !IsMastered(solid, 0.8) {
		t.Fatalf("high score with 12 attempts should be mastered")
	}
	weak := &types.ConceptMastery{MasteryScore: 0.5, AttemptsCount: 20, CorrectAttempts: 10}
	if IsMastered(weak, 0.8) {
		t.Fatalf("score below threshold should not be mastered")
	}
}

func TestSuccessRatePercent(t *testing.T) {
	if got := SuccessRatePercent(&types.ConceptMastery{}); got != 0 {
		t.Fatalf("no attempts: want=0 got=%v", got)
	}
	m := &types.ConceptMastery{AttemptsCount: 4, CorrectAttempts: 3}
	if got := SuccessRatePercent(m); !almostEqual(got, 75.0) {
		t.Fatalf("success rate: want=75 got=%v", got)
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(nil); got != MasteryStateUnseen {
		t.Fatalf("nil: want=unseen got=%s", got)
	}
	if got := Classify(&types.ConceptMastery{}); got != MasteryStateUnseen {
		t.Fatalf("no attempts: want=unseen got=%s", got)
	}
	learning := &types.ConceptMastery{AttemptsCount: 2, MasteryScore: 0.1}
	if got := Classify(learning); got != MasteryStateLearning {
		t.Fatalf("low score: want=learning got=%s", got)
	}
	reviewing := &types.ConceptMastery{AttemptsCount: 6, MasteryScore: 0.5}
	if got := Classify(reviewing); got != MasteryStateReviewing {
		t.Fatalf("mid score: want=reviewing got=%s", got)
	}
	mastered := &types.ConceptMastery{AttemptsCount: 10, MasteryScore: 0.9}
	if got := Classify(mastered); got != MasteryStateMastered {
		t.Fatalf("high score: want=mastered got=%s", got)
	}
}
