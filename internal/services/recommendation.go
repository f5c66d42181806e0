package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// Recommendation reasons, highest priority first.
const (
	ReasonDueReview   = "due_review"
	ReasonErrorDriven = "error_driven"
	ReasonProgressive = "progressive"
	ReasonFocusArea   = "focus_area"
)

const (
	defaultRecommendationLimit = 10
	errorSignalMinFrequency    = 2
	improvableMasteryCeiling   = 0.7
	progressiveMasteryCeiling  = 0.8
	similarityFallbackScore    = 0.5
)

// PracticeRecommendation is one ranked practice suggestion. Priority is the
// signal tier (1 = most urgent); within a tier items keep signal order.
type PracticeRecommendation struct {
	Concept      *types.GrammarConcept `json:"concept"`
	Reason       string                `json:"reason"`
	Priority     int                   `json:"priority"`
	MasteryScore float64               `json:"mastery_score"`
}

// SimilarConcept pairs a concept with its similarity to a query.
type SimilarConcept struct {
	Concept    *types.GrammarConcept `json:"concept"`
	Similarity float64               `json:"similarity"`
	Mastery    *types.ConceptMastery `json:"mastery,omitempty"`
}

// SimilarOpts tunes FindSimilarConcepts.
type SimilarOpts struct {
	Limit     int
	Threshold float64
	// Level restricts results to one CEFR level when set.
	Level types.CEFRLevel
	// UserID attaches the user's mastery rows to results when set.
	UserID uuid.UUID
}

// ConceptCluster groups concepts that embed near each other.
type ConceptCluster struct {
	Key      string                  `json:"key"`
	Concepts []*types.GrammarConcept `json:"concepts"`
}

// RecommendationService blends spaced repetition, error history, level
// progression and caller focus areas into one ranked practice list.
type RecommendationService interface {
	GetPracticeConcepts(ctx context.Context, userID uuid.UUID, language string, limit int, focusAreas []string) ([]PracticeRecommendation, error)
	FindSimilarConcepts(ctx context.Context, query, language string, opts SimilarOpts) ([]SimilarConcept, error)
	ClusterConceptsBySimilarity(ctx context.Context, language string, threshold float64, minClusterSize int) ([]ConceptCluster, error)
	// ConceptLearningDifficulty scores how hard a concept will likely be for
	// this user, combining catalog complexity, community outcomes, and the
	// user's own record. Result in [0,1].
	ConceptLearningDifficulty(ctx context.Context, userID, conceptID uuid.UUID) (float64, error)
}

type recommendationService struct {
	conceptRepo repos.GrammarConceptRepo
	masteryRepo repos.ConceptMasteryRepo
	patternRepo repos.ErrorPatternRepo
	profileRepo repos.LanguageProfileRepo
	proficiency ProficiencyService
	embedding   EmbeddingService
	store       vecstore.Store
	log         *logger.Logger

	now func() time.Time
}

func NewRecommendationService(
	conceptRepo repos.GrammarConceptRepo,
	masteryRepo repos.ConceptMasteryRepo,
	patternRepo repos.ErrorPatternRepo,
	profileRepo repos.LanguageProfileRepo,
	proficiency ProficiencyService,
	embedding EmbeddingService,
	store vecstore.Store,
	baseLog *logger.Logger,
) RecommendationService {
	return &recommendationService{
		conceptRepo: conceptRepo,
		masteryRepo: masteryRepo,
		patternRepo: patternRepo,
		profileRepo: profileRepo,
		proficiency: proficiency,
		embedding:   embedding,
		store:       store,
		log:         baseLog.With("service", "RecommendationService"),
		now:         time.Now,
	}
}

func (s *recommendationService) GetPracticeConcepts(ctx context.Context, userID uuid.UUID, language string, limit int, focusAreas []string) ([]PracticeRecommendation, error) {
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}

	// A missing index only loses mastery filtering; absent rows already
	// count as 0.0, so degrade instead of failing the whole call.
	masteryByID, err := s.masteryIndex(ctx, userID, language)
	if err != nil {
		s.log.Warn("Mastery index unavailable, recommending without it", "user_id", userID, "error", err.Error())
		masteryByID = map[uuid.UUID]*types.ConceptMastery{}
	}

	var out []PracticeRecommendation
	out = append(out, s.dueReviewSignal(ctx, userID, language, limit, masteryByID)...)
	out = append(out, s.errorDrivenSignal(ctx, userID, limit, masteryByID)...)
	out = append(out, s.progressiveSignal(ctx, userID, language, limit, masteryByID)...)
	if len(focusAreas) > 0 {
		out = append(out, s.focusAreaSignal(ctx, language, limit, focusAreas, masteryByID)...)
	}

	out = dedupByConcept(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// masteryIndex loads all of the user's mastery rows for the language, keyed
// by concept ID. Concepts absent from the index count as mastery 0.0.
func (s *recommendationService) masteryIndex(ctx context.Context, userID uuid.UUID, language string) (map[uuid.UUID]*types.ConceptMastery, error) {
	rows, err := s.masteryRepo.GetByUserAndLanguage(ctx, nil, userID, language)
	if err != nil {
		return nil, err
	}
	idx := make(map[uuid.UUID]*types.ConceptMastery, len(rows))
	for _, m := range rows {
		idx[m.ConceptID] = m
	}
	return idx, nil
}

func masteryScoreOf(idx map[uuid.UUID]*types.ConceptMastery, conceptID uuid.UUID) float64 {
	if m, ok := idx[conceptID]; ok {
		return m.MasteryScore
	}
	return 0.0
}

// dueReviewSignal: most overdue first, capped to a third of the total limit
// so reviews cannot crowd out everything else.
func (s *recommendationService) dueReviewSignal(ctx context.Context, userID uuid.UUID, language string, limit int, idx map[uuid.UUID]*types.ConceptMastery) []PracticeRecommendation {
	quota := limit / 3
	if quota < 1 {
		quota = 1
	}
	due, err := s.masteryRepo.GetDueForReview(ctx, nil, userID, language, s.now(), quota)
	if err != nil {
		s.log.Warn("Due-review signal failed", "user_id", userID, "error", err.Error())
		return nil
	}
	var out []PracticeRecommendation
	for _, m := range due {
		if m.Concept == nil {
			continue
		}
		out = append(out, PracticeRecommendation{
			Concept:      m.Concept,
			Reason:       ReasonDueReview,
			Priority:     1,
			MasteryScore: m.MasteryScore,
		})
	}
	return out
}

func (s *recommendationService) errorDrivenSignal(ctx context.Context, userID uuid.UUID, limit int, idx map[uuid.UUID]*types.ConceptMastery) []PracticeRecommendation {
	since := s.now().AddDate(0, 0, -recentWindowDays)
	patterns, err := s.patternRepo.GetRecentPersistent(ctx, nil, userID, since, errorSignalMinFrequency, limit)
	if err != nil {
		s.log.Warn("Error-driven signal failed", "user_id", userID, "error", err.Error())
		return nil
	}
	var out []PracticeRecommendation
	for _, p := range patterns {
		for _, c := range p.RelatedConcepts {
			if masteryScoreOf(idx, c.ID) >= improvableMasteryCeiling {
				continue
			}
			out = append(out, PracticeRecommendation{
				Concept:      c,
				Reason:       ReasonErrorDriven,
				Priority:     2,
				MasteryScore: masteryScoreOf(idx, c.ID),
			})
		}
	}
	return out
}

func (s *recommendationService) progressiveSignal(ctx context.Context, userID uuid.UUID, language string, limit int, idx map[uuid.UUID]*types.ConceptMastery) []PracticeRecommendation {
	profile, err := s.profileRepo.GetByUserAndLanguage(ctx, nil, userID, language)
	if err != nil {
		s.log.Warn("Progressive signal failed", "user_id", userID, "error", err.Error())
		return nil
	}
	level := types.CEFRLevelA1
	if profile != nil {
		level = profile.CurrentLevel
	}

	concepts, err := s.conceptRepo.GetByLanguageAndLevels(ctx, nil, language, []types.CEFRLevel{level})
	if err != nil {
		s.log.Warn("Progressive signal failed", "user_id", userID, "error", err.Error())
		return nil
	}

	var out []PracticeRecommendation
	for _, c := range concepts {
		if masteryScoreOf(idx, c.ID) >= progressiveMasteryCeiling {
			continue
		}
		out = append(out, PracticeRecommendation{
			Concept:      c,
			Reason:       ReasonProgressive,
			Priority:     3,
			MasteryScore: masteryScoreOf(idx, c.ID),
		})
	}

	if profile != nil {
		ready, err := s.proficiency.IsReadyForNextLevel(ctx, profile)
		if err != nil {
			s.log.Warn("Next-level readiness check failed", "user_id", userID, "error", err.Error())
			return out
		}
		if ready {
			next, err := types.NextLevel(level)
			if err == nil && next != level {
				quota := limit / 3
				if quota < 1 {
					quota = 1
				}
				nextConcepts, err := s.conceptRepo.GetByLanguageAndLevels(ctx, nil, language, []types.CEFRLevel{next})
				if err != nil {
					s.log.Warn("Next-level signal failed", "user_id", userID, "error", err.Error())
					return out
				}
				for i, c := range nextConcepts {
					if i >= quota {
						break
					}
					out = append(out, PracticeRecommendation{
						Concept:      c,
						Reason:       ReasonProgressive,
						Priority:     3,
						MasteryScore: masteryScoreOf(idx, c.ID),
					})
				}
			}
		}
	}
	return out
}

// focusAreaSignal splits the limit evenly across the requested topics.
func (s *recommendationService) focusAreaSignal(ctx context.Context, language string, limit int, focusAreas []string, idx map[uuid.UUID]*types.ConceptMastery) []PracticeRecommendation {
	perTopic := limit / len(focusAreas)
	if perTopic < 1 {
		perTopic = 1
	}
	var out []PracticeRecommendation
	for _, topic := range focusAreas {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		matches, err := s.conceptRepo.SearchByTagOrName(ctx, nil, language, topic, perTopic)
		if err != nil {
			s.log.Warn("Focus-area signal failed", "topic", topic, "error", err.Error())
			continue
		}
		for _, c := range matches {
			out = append(out, PracticeRecommendation{
				Concept:      c,
				Reason:       ReasonFocusArea,
				Priority:     4,
				MasteryScore: masteryScoreOf(idx, c.ID),
			})
		}
	}
	return out
}

func dedupByConcept(recs []PracticeRecommendation) []PracticeRecommendation {
	seen := make(map[uuid.UUID]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if r.Concept == nil || seen[r.Concept.ID] {
			continue
		}
		seen[r.Concept.ID] = true
		out = append(out, r)
	}
	return out
}

func (s *recommendationService) FindSimilarConcepts(ctx context.Context, query, language string, opts SimilarOpts) ([]SimilarConcept, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultRecommendationLimit
	}

	results, err := s.similarViaVectors(ctx, query, language, opts)
	if err != nil {
		s.log.Warn("Vector similarity unavailable, falling back to text search",
			"query", query,
			"error", err.Error(),
		)
		results, err = s.similarViaText(ctx, query, language, opts)
		if err != nil {
			return nil, err
		}
	}

	if opts.UserID != uuid.Nil && len(results) > 0 {
		ids := make([]uuid.UUID, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.Concept.ID)
		}
		masteries, err := s.masteryRepo.GetByUserAndConceptIDs(ctx, nil, opts.UserID, ids)
		if err == nil {
			byID := make(map[uuid.UUID]*types.ConceptMastery, len(masteries))
			for _, m := range masteries {
				byID[m.ConceptID] = m
			}
			for i := range results {
				results[i].Mastery = byID[results[i].Concept.ID]
			}
		}
	}
	return results, nil
}

func (s *recommendationService) similarViaVectors(ctx context.Context, query, language string, opts SimilarOpts) ([]SimilarConcept, error) {
	vec, err := s.embedding.EmbedQuery(ctx, query, language)
	if err != nil {
		return nil, err
	}

	// Over-fetch so a level filter does not starve the result set.
	k := opts.Limit * 3
	matches, err := s.store.TopKSimilar(ctx, language, vec, k, opts.Threshold, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []SimilarConcept{}, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	scoreByID := make(map[uuid.UUID]float64, len(matches))
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil {
			continue
		}
		ids = append(ids, id)
		scoreByID[id] = m.Score
	}

	concepts, err := s.conceptRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.GrammarConcept, len(concepts))
	for _, c := range concepts {
		byID[c.ID] = c
	}

	out := make([]SimilarConcept, 0, opts.Limit)
	for _, id := range ids {
		c := byID[id]
		if c == nil {
			continue
		}
		if opts.Level != "" && c.CEFRLevel != opts.Level {
			continue
		}
		out = append(out, SimilarConcept{Concept: c, Similarity: scoreByID[id]})
		if len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// similarViaText is the degraded path when the embedding oracle or vector
// store is down: substring search with a flat mid-scale similarity.
func (s *recommendationService) similarViaText(ctx context.Context, query, language string, opts SimilarOpts) ([]SimilarConcept, error) {
	concepts, err := s.conceptRepo.SearchByText(ctx, nil, language, query, opts.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarConcept, 0, len(concepts))
	for _, c := range concepts {
		if opts.Level != "" && c.CEFRLevel != opts.Level {
			continue
		}
		out = append(out, SimilarConcept{Concept: c, Similarity: similarityFallbackScore})
	}
	return out, nil
}

// ClusterConceptsBySimilarity greedily groups embedded concepts: each
// unassigned concept seeds a cluster and pulls in every later concept within
// the similarity threshold. Clusters below minClusterSize are dropped.
func (s *recommendationService) ClusterConceptsBySimilarity(ctx context.Context, language string, threshold float64, minClusterSize int) ([]ConceptCluster, error) {
	if minClusterSize < 1 {
		minClusterSize = 1
	}
	concepts, err := s.conceptRepo.GetByLanguage(ctx, nil, language)
	if err != nil {
		return nil, err
	}

	embedded := make([]*types.GrammarConcept, 0, len(concepts))
	vectors := make([][]float32, 0, len(concepts))
	for _, c := range concepts {
		if v := c.EmbeddingVector(); len(v) > 0 {
			embedded = append(embedded, c)
			vectors = append(vectors, v)
		}
	}

	assigned := make([]bool, len(embedded))
	var clusters []ConceptCluster
	for i, seed := range embedded {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		cluster := ConceptCluster{
			Key:      fmt.Sprintf("%s/%s", seed.CEFRLevel, seed.Name),
			Concepts: []*types.GrammarConcept{seed},
		}
		for j := i + 1; j < len(embedded); j++ {
			if assigned[j] {
				continue
			}
			if vecstore.CosineSimilarity(vectors[i], vectors[j]) >= threshold {
				assigned[j] = true
				cluster.Concepts = append(cluster.Concepts, embedded[j])
			}
		}
		if len(cluster.Concepts) >= minClusterSize {
			clusters = append(clusters, cluster)
		}
	}

	sort.SliceStable(clusters, func(a, b int) bool {
		return len(clusters[a].Concepts) > len(clusters[b].Concepts)
	})
	return clusters, nil
}

func (s *recommendationService) ConceptLearningDifficulty(ctx context.Context, userID, conceptID uuid.UUID) (float64, error) {
	concept, err := s.conceptRepo.GetByID(ctx, nil, conceptID)
	if err != nil {
		return 0, err
	}
	if concept == nil {
		return 0, fmt.Errorf("concept %s not found", conceptID)
	}

	// Catalog complexity normalized from 0..10.
	difficulty := concept.ComplexityScore / 10.0
	weight := 1.0

	// Community signal: low average mastery across enough learners means
	// the concept is hard in practice, whatever the catalog says.
	all, err := s.masteryRepo.GetByConcept(ctx, nil, conceptID)
	if err != nil {
		return 0, err
	}
	if len(all) > 5 {
		var sum float64
		for _, m := range all {
			sum += m.MasteryScore
		}
		avg := sum / float64(len(all))
		difficulty += 1.0 - avg
		weight++
	}

	// Personal signal, dampened for sparse attempt counts.
	if userID != uuid.Nil {
		mine, err := s.masteryRepo.GetByUserAndConcept(ctx, nil, userID, conceptID)
		if err != nil {
			return 0, err
		}
		if mine != nil && mine.AttemptsCount > 0 {
			successRate := float64(mine.CorrectAttempts) / float64(mine.AttemptsCount)
			confidence := math.Min(1.0, float64(mine.AttemptsCount)/10.0)
			difficulty += (1.0 - successRate) * confidence
			weight++
		}
	}

	score := difficulty / weight
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return score, nil
}
