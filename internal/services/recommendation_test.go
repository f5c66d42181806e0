package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type fakeConceptRepo struct {
	concepts []*types.GrammarConcept

	byLevelErr error
	searchErr  error
}

func newFakeConceptRepo() *fakeConceptRepo {
	return &fakeConceptRepo{}
}

func (f *fakeConceptRepo) add(c *types.GrammarConcept) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.concepts = append(f.concepts, c)
}

func (f *fakeConceptRepo) Create(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) (*types.GrammarConcept, error) {
	f.add(row)
	return row, nil
}

func (f *fakeConceptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.GrammarConcept, error) {
	for _, c := range f.concepts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeConceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GrammarConcept, error) {
	var out []*types.GrammarConcept
	for _, id := range ids {
		for _, c := range f.concepts {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeConceptRepo) GetByNameAndLanguage(ctx context.Context, tx *gorm.DB, name, language string) (*types.GrammarConcept, error) {
	for _, c := range f.concepts {
		if c.Name == name && c.Language == language {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeConceptRepo) GetByLanguage(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error) {
	var out []*types.GrammarConcept
	for _, c := range f.concepts {
		if c.Language == language {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConceptRepo) GetByLanguageAndLevels(ctx context.Context, tx *gorm.DB, language string, levels []types.CEFRLevel) ([]*types.GrammarConcept, error) {
	if f.byLevelErr != nil {
		return nil, f.byLevelErr
	}
	allow := map[types.CEFRLevel]bool{}
	for _, l := range levels {
		allow[l] = true
	}
	var out []*types.GrammarConcept
	for _, c := range f.concepts {
		if c.Language == language && allow[c.CEFRLevel] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConceptRepo) SearchByTagOrName(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []*types.GrammarConcept
	for _, c := range f.concepts {
		if c.Language != language {
			continue
		}
		matched := strings.Contains(strings.ToLower(c.Name), strings.ToLower(term))
		for _, tag := range c.TagList() {
			if tag == term {
				matched = true
			}
		}
		if matched {
			out = append(out, c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeConceptRepo) SearchByText(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error) {
	return f.SearchByTagOrName(ctx, tx, language, term, limit)
}

func (f *fakeConceptRepo) GetMissingEmbedding(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error) {
	var out []*types.GrammarConcept
	for _, c := range f.concepts {
		if c.Language == language && len(c.EmbeddingVector()) == 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConceptRepo) UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, vector []float32) error {
	for _, c := range f.concepts {
		if c.ID == id {
			c.SetEmbeddingVector(vector)
			return nil
		}
	}
	return nil
}

func (f *fakeConceptRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) error {
	for _, c := range f.concepts {
		if c.Name == row.Name && c.Language == row.Language {
			c.Description = row.Description
			c.CEFRLevel = row.CEFRLevel
			c.ComplexityScore = row.ComplexityScore
			return nil
		}
	}
	f.add(row)
	return nil
}

func (f *fakeConceptRepo) AddPrerequisite(ctx context.Context, tx *gorm.DB, conceptID, prerequisiteID uuid.UUID) error {
	return nil
}

func (f *fakeConceptRepo) PrerequisitesOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	return nil, nil
}

func (f *fakeConceptRepo) DependentsOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	return nil, nil
}

type fakeEmbeddingService struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbeddingService) EnsureConceptEmbedding(ctx context.Context, concept *types.GrammarConcept) error {
	return f.err
}

func (f *fakeEmbeddingService) EmbedQuery(ctx context.Context, text, language string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbeddingService) BackfillConceptEmbeddings(ctx context.Context, language string) (int, error) {
	return 0, f.err
}

type recommenderFixture struct {
	concepts  *fakeConceptRepo
	masteries *fakeMasteryRepo
	patterns  *fakePatternRepo
	profiles  *fakeProfileRepo
	embedding *fakeEmbeddingService
	store     vecstore.Store
	svc       *recommendationService
	now       time.Time
}

func newRecommenderFixture(t *testing.T) *recommenderFixture {
	t.Helper()
	concepts := newFakeConceptRepo()
	masteries := newFakeMasteryRepo()
	patterns := newFakePatternRepo()
	profiles := newFakeProfileRepo()
	embedding := &fakeEmbeddingService{vectors: map[string][]float32{}}
	store, err := vecstore.NewMemoryStore(logger.NewNop(), 2)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	proficiency := newTestProficiencyService(profiles, concepts, masteries, now)
	svc := NewRecommendationService(concepts, masteries, patterns, profiles, proficiency, embedding, store, logger.NewNop()).(*recommendationService)
	svc.now = func() time.Time { return now }

	return &recommenderFixture{
		concepts:  concepts,
		masteries: masteries,
		patterns:  patterns,
		profiles:  profiles,
		embedding: embedding,
		store:     store,
		svc:       svc,
		now:       now,
	}
}

func (fx *recommenderFixture) addConcept(name string, level types.CEFRLevel) *types.GrammarConcept {
	c := &types.GrammarConcept{Name: name, Language: "es", CEFRLevel: level}
	fx.concepts.add(c)
	return c
}

func TestGetPracticeConceptsPriorityAndDedup(t *testing.T) {
	fx := newRecommenderFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	dueConcept := fx.addConcept("preterite vs imperfect", types.CEFRLevelA2)
	errConcept := fx.addConcept("gender agreement", types.CEFRLevelA1)
	freshConcept := fx.addConcept("ser vs estar", types.CEFRLevelA1)

	// Due review, also linked to an error pattern: the due-review reason
	// must win the dedup.
	fx.masteries.due = []*types.ConceptMastery{
		{UserID: userID, ConceptID: dueConcept.ID, Concept: dueConcept, MasteryScore: 0.3},
	}
	fx.patterns.patterns = append(fx.patterns.patterns, &types.ErrorPattern{
		ID:              uuid.New(),
		UserID:          userID,
		ErrorType:       types.ErrorCategoryGrammar,
		Frequency:       4,
		LastSeen:        fx.now.AddDate(0, 0, -1),
		RelatedConcepts: []*types.GrammarConcept{dueConcept, errConcept},
	})
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}
	_ = freshConcept

	recs, err := fx.svc.GetPracticeConcepts(ctx, userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}

	seen := map[uuid.UUID]bool{}
	for _, r := range recs {
		if seen[r.Concept.ID] {
			t.Fatalf("concept %s appears twice", r.Concept.Name)
		}
		seen[r.Concept.ID] = true
	}

	if recs[0].Concept.ID != dueConcept.ID || recs[0].Reason != ReasonDueReview {
		t.Fatalf("first rec: want due_review %s got %s %s", dueConcept.Name, recs[0].Reason, recs[0].Concept.Name)
	}
	var errReason string
	for _, r := range recs {
		if r.Concept.ID == errConcept.ID {
			errReason = r.Reason
		}
	}
	if errReason != ReasonErrorDriven {
		t.Fatalf("error concept reason: want=error_driven got=%q", errReason)
	}
}

func TestGetPracticeConceptsRespectsLimit(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	for i := 0; i < 20; i++ {
		fx.addConcept("concept "+string(rune('a'+i)), types.CEFRLevelA1)
	}
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}

	recs, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 5, nil)
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("rec count: want=5 got=%d", len(recs))
	}
}

func TestGetPracticeConceptsDeterministic(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	for i := 0; i < 6; i++ {
		fx.addConcept("concept "+string(rune('a'+i)), types.CEFRLevelA1)
	}
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}

	first, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}
	second, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Concept.ID != second[i].Concept.ID {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i].Concept.Name, second[i].Concept.Name)
		}
	}
}

func TestGetPracticeConceptsSkipsMasteredProgressive(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	mastered := fx.addConcept("present tense", types.CEFRLevelA1)
	fx.addConcept("plural nouns", types.CEFRLevelA1)
	fx.masteries.rows[masteryKey(userID, mastered.ID)] = &types.ConceptMastery{
		UserID: userID, ConceptID: mastered.ID, MasteryScore: 0.95, AttemptsCount: 12,
	}
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}

	recs, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}
	for _, r := range recs {
		if r.Concept.ID == mastered.ID {
			t.Fatalf("mastered concept should not be recommended progressively")
		}
	}
}

func TestGetPracticeConceptsSwallowsSignalFailures(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	fx.addConcept("ser vs estar", types.CEFRLevelA1)
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}
	fx.patterns.recentErr = errors.New("patterns table on fire")

	recs, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("signal failure must not fail the call: %v", err)
	}
	if len(recs) == 0 {
		t.Fatalf("surviving signals should still contribute")
	}
}

func TestGetPracticeConceptsDegradesWithoutMasteryIndex(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	fx.addConcept("ser vs estar", types.CEFRLevelA1)
	fx.profiles.profiles[profileKey(userID, "es")] = &types.LanguageProfile{
		ID: uuid.New(), UserID: userID, TargetLanguage: "es", CurrentLevel: types.CEFRLevelA1,
	}
	fx.masteries.listErr = errors.New("mastery table unavailable")

	recs, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, nil)
	if err != nil {
		t.Fatalf("index failure must degrade, not fail: %v", err)
	}
	if len(recs) == 0 {
		t.Fatalf("recommendations should still come through with an empty index")
	}
}

func TestGetPracticeConceptsFocusAreas(t *testing.T) {
	fx := newRecommenderFixture(t)
	userID := uuid.New()
	tagged := fx.addConcept("past participle", types.CEFRLevelB1)
	tagged.SetTagList([]string{"verbs"})
	fx.addConcept("noun gender", types.CEFRLevelB1)

	recs, err := fx.svc.GetPracticeConcepts(context.Background(), userID, "es", 10, []string{"verbs"})
	if err != nil {
		t.Fatalf("GetPracticeConcepts: %v", err)
	}
	var found bool
	for _, r := range recs {
		if r.Concept.ID == tagged.ID && r.Reason == ReasonFocusArea {
			found = true
		}
	}
	if !found {
		t.Fatalf("focus area match missing from recommendations")
	}
}

func TestFindSimilarConceptsVectorPath(t *testing.T) {
	fx := newRecommenderFixture(t)
	ctx := context.Background()

	near := fx.addConcept("subjunctive mood", types.CEFRLevelB2)
	far := fx.addConcept("numbers", types.CEFRLevelA1)
	if err := fx.store.Upsert(ctx, "es", []vecstore.Vector{
		{ID: near.ID.String(), Values: []float32{1, 0}},
		{ID: far.ID.String(), Values: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	fx.embedding.vectors["wish clauses"] = []float32{1, 0}

	results, err := fx.svc.FindSimilarConcepts(ctx, "wish clauses", "es", SimilarOpts{Limit: 1, Threshold: 0.6})
	if err != nil {
		t.Fatalf("FindSimilarConcepts: %v", err)
	}
	if len(results) != 1 || results[0].Concept.ID != near.ID {
		t.Fatalf("want nearest concept %s, got %v", near.Name, results)
	}
	if results[0].Similarity < 0.99 {
		t.Fatalf("similarity: want~1.0 got=%v", results[0].Similarity)
	}
}

func TestFindSimilarConceptsFallsBackToTextSearch(t *testing.T) {
	fx := newRecommenderFixture(t)
	fx.addConcept("subjunctive mood", types.CEFRLevelB2)
	fx.embedding.err = errors.New("embedding oracle down")

	results, err := fx.svc.FindSimilarConcepts(context.Background(), "subjunctive", "es", SimilarOpts{Limit: 5})
	if err != nil {
		t.Fatalf("FindSimilarConcepts fallback: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("fallback results: want=1 got=%d", len(results))
	}
	if results[0].Similarity != similarityFallbackScore {
		t.Fatalf("fallback similarity: want=%v got=%v", similarityFallbackScore, results[0].Similarity)
	}
}

func TestClusterConceptsBySimilarity(t *testing.T) {
	fx := newRecommenderFixture(t)

	a := fx.addConcept("preterite", types.CEFRLevelA2)
	a.SetEmbeddingVector([]float32{1, 0})
	b := fx.addConcept("imperfect", types.CEFRLevelA2)
	b.SetEmbeddingVector([]float32{0.99, 0.1})
	c := fx.addConcept("alphabet", types.CEFRLevelA1)
	c.SetEmbeddingVector([]float32{0, 1})

	clusters, err := fx.svc.ClusterConceptsBySimilarity(context.Background(), "es", 0.9, 2)
	if err != nil {
		t.Fatalf("ClusterConceptsBySimilarity: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("clusters: want=1 got=%d", len(clusters))
	}
	if len(clusters[0].Concepts) != 2 {
		t.Fatalf("cluster size: want=2 got=%d", len(clusters[0].Concepts))
	}
}

func TestConceptLearningDifficulty(t *testing.T) {
	fx := newRecommenderFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	c := fx.addConcept("conditional perfect", types.CEFRLevelC1)
	c.ComplexityScore = 8.0

	// Catalog complexity alone: 0.8.
	score, err := fx.svc.ConceptLearningDifficulty(ctx, userID, c.ID)
	if err != nil {
		t.Fatalf("ConceptLearningDifficulty: %v", err)
	}
	if !almostEqual(score, 0.8) {
		t.Fatalf("base difficulty: want=0.8 got=%v", score)
	}

	// A struggling personal record raises the score.
	fx.masteries.rows[masteryKey(userID, c.ID)] = &types.ConceptMastery{
		UserID: userID, ConceptID: c.ID, AttemptsCount: 10, CorrectAttempts: 2,
	}
	score, err = fx.svc.ConceptLearningDifficulty(ctx, userID, c.ID)
	if err != nil {
		t.Fatalf("ConceptLearningDifficulty: %v", err)
	}
	if !almostEqual(score, (0.8+0.8)/2) {
		t.Fatalf("personalized difficulty: want=0.8 got=%v", score)
	}
}
