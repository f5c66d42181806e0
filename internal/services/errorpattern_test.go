package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type fakePatternRepo struct {
	patterns  []*types.ErrorPattern
	links     map[uuid.UUID][]uuid.UUID
	recentErr error
}

func newFakePatternRepo() *fakePatternRepo {
	return &fakePatternRepo{links: map[uuid.UUID][]uuid.UUID{}}
}

func (f *fakePatternRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) (*types.ErrorPattern, error) {
	row.ID = uuid.New()
	f.patterns = append(f.patterns, row)
	return row, nil
}

func (f *fakePatternRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ErrorPattern, error) {
	for _, p := range f.patterns {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePatternRepo) GetByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, errorType types.ErrorCategory) ([]*types.ErrorPattern, error) {
	var out []*types.ErrorPattern
	for _, p := range f.patterns {
		if p.UserID == userID && p.ErrorType == errorType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePatternRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ErrorPattern, error) {
	var out []*types.ErrorPattern
	for _, p := range f.patterns {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePatternRepo) GetRecentPersistent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, minFrequency, limit int) ([]*types.ErrorPattern, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	var out []*types.ErrorPattern
	for _, p := range f.patterns {
		if p.UserID == userID && !p.IsResolved && p.Frequency >= minFrequency && !p.LastSeen.Before(since) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePatternRepo) Save(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
		f.patterns = append(f.patterns, row)
	}
	return nil
}

func (f *fakePatternRepo) AddRelatedConcept(ctx context.Context, tx *gorm.DB, patternID, conceptID uuid.UUID) error {
	f.links[patternID] = append(f.links[patternID], conceptID)
	return nil
}

func newTestErrorPatternService(repo *fakePatternRepo, now time.Time) *errorPatternService {
	svc := NewErrorPatternService(repo, logger.NewNop()).(*errorPatternService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRecordErrorCreatesNewPattern(t *testing.T) {
	repo := newFakePatternRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestErrorPatternService(repo, now)
	userID := uuid.New()

	p, err := svc.RecordError(context.Background(), userID, "verb_tense", "wrong past tense of ir", "yo fui a", "yo iba a")
	if err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if p.Frequency != 1 {
		t.Fatalf("frequency: want=1 got=%d", p.Frequency)
	}
	if !p.FirstSeen.Equal(now) || !p.LastSeen.Equal(now) {
		t.Fatalf("timestamps: want=%v got first=%v last=%v", now, p.FirstSeen, p.LastSeen)
	}
	if got := p.ExampleList(); len(got) != 1 || got[0] != "yo fui a" {
		t.Fatalf("examples: want=[yo fui a] got=%v", got)
	}
	if got := p.CorrectionList(); len(got) != 1 || got[0] != "yo iba a" {
		t.Fatalf("corrections: want=[yo iba a] got=%v", got)
	}
}

func TestRecordErrorMergesFuzzyMatch(t *testing.T) {
	repo := newFakePatternRepo()
	later := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestErrorPatternService(repo, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	userID := uuid.New()
	ctx := context.Background()

	first, err := svc.RecordError(ctx, userID, "articles", "missing article", "es problema", "es un problema")
	if err != nil {
		t.Fatalf("first RecordError: %v", err)
	}

	svc.now = func() time.Time { return later }
	second, err := svc.RecordError(ctx, userID, "articles", "missing article before noun", "tengo idea", "tengo una idea")
	if err != nil {
		t.Fatalf("second RecordError: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("descriptions should merge into one pattern")
	}
	if second.Frequency != 2 {
		t.Fatalf("frequency: want=2 got=%d", second.Frequency)
	}
	if !second.LastSeen.Equal(later) {
		t.Fatalf("last_seen: want=%v got=%v", later, second.LastSeen)
	}
	if got := len(second.ExampleList()); got != 2 {
		t.Fatalf("examples: want=2 got=%d", got)
	}
}

func TestRecordErrorDuplicateExampleBumpsFrequencyOnly(t *testing.T) {
	repo := newFakePatternRepo()
	svc := newTestErrorPatternService(repo, time.Now())
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.RecordError(ctx, userID, "spelling", "misspelled ser", "soi", "soy"); err != nil {
		t.Fatalf("first RecordError: %v", err)
	}
	p, err := svc.RecordError(ctx, userID, "spelling", "misspelled ser", "soi", "soy")
	if err != nil {
		t.Fatalf("second RecordError: %v", err)
	}
	if p.Frequency != 2 {
		t.Fatalf("frequency: want=2 got=%d", p.Frequency)
	}
	if got := len(p.ExampleList()); got != 1 {
		t.Fatalf("examples after duplicate: want=1 got=%d", got)
	}
}

func TestRecordErrorDifferentTypesStaySeparate(t *testing.T) {
	repo := newFakePatternRepo()
	svc := newTestErrorPatternService(repo, time.Now())
	userID := uuid.New()
	ctx := context.Background()

	a, err := svc.RecordError(ctx, userID, "articles", "missing article", "", "")
	if err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	b, err := svc.RecordError(ctx, userID, "prepositions", "missing article", "", "")
	if err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("different error types must not merge")
	}
}

func TestRecordErrorNormalizesUnknownCategory(t *testing.T) {
	repo := newFakePatternRepo()
	svc := newTestErrorPatternService(repo, time.Now())

	p, err := svc.RecordError(context.Background(), uuid.New(), "weird_custom_type", "something odd", "", "")
	if err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if p.ErrorType != types.ErrorCategoryOther {
		t.Fatalf("error type: want=other got=%s", p.ErrorType)
	}
}

func TestResolveSetsFlagOnce(t *testing.T) {
	repo := newFakePatternRepo()
	now := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	svc := newTestErrorPatternService(repo, now)

	p, err := svc.RecordError(context.Background(), uuid.New(), "syntax", "run-on sentence", "", "")
	if err != nil {
		t.Fatalf("RecordError: %v", err)
	}

	resolved, err := svc.Resolve(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.IsResolved || resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(now) {
		t.Fatalf("resolve state: resolved=%v at=%v", resolved.IsResolved, resolved.ResolvedAt)
	}

	// Second resolve is a no-op, not an error.
	again, err := svc.Resolve(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !again.ResolvedAt.Equal(now) {
		t.Fatalf("resolved_at changed on second resolve")
	}
}

func TestIsPersistentAndIsRecent(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	p := &types.ErrorPattern{Frequency: 3, LastSeen: now.AddDate(0, 0, -2)}
	if !IsPersistent(p, 3) {
		t.Fatalf("frequency 3 unresolved should be persistent")
	}
	p.IsResolved = true
	if IsPersistent(p, 3) {
		t.Fatalf("resolved pattern should not be persistent")
	}

	if !IsRecent(p, now, 7) {
		t.Fatalf("2-day-old pattern should be recent")
	}
	old := &types.ErrorPattern{LastSeen: now.AddDate(0, 0, -10)}
	if IsRecent(old, now, 7) {
		t.Fatalf("10-day-old pattern should not be recent")
	}
	boundary := &types.ErrorPattern{LastSeen: now.AddDate(0, 0, -7)}
	if !IsRecent(boundary, now, 7) {
		t.Fatalf("pattern last seen exactly at the window edge should be recent")
	}
}
