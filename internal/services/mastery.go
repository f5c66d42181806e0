package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// MasteryState is derived from a mastery row on read; it is never stored.
type MasteryState string

const (
	MasteryStateUnseen    MasteryState = "unseen"
	MasteryStateLearning  MasteryState = "learning"
	MasteryStateReviewing MasteryState = "reviewing"
	MasteryStateMastered  MasteryState = "mastered"
)

const (
	easeFactorMin     = 1.3
	easeFactorMax     = 4.0
	masteredThreshold = 0.8
	masteredMinTries  = 5
)

// MasteryService runs the spaced-repetition state machine over per-user,
// per-concept mastery rows.
type MasteryService interface {
	// RecordAttempt applies one practice outcome to the (user, concept)
	// mastery row, creating it on first contact. Difficulty is the oracle's
	// 0..1 estimate of how hard this usage was; values outside the range
	// are clamped.
	RecordAttempt(ctx context.Context, userID, conceptID uuid.UUID, isCorrect bool, difficulty float64) (*types.ConceptMastery, error)
	GetDueForReview(ctx context.Context, userID uuid.UUID, language string, limit int) ([]*types.ConceptMastery, error)
	GetByUserAndLanguage(ctx context.Context, userID uuid.UUID, language string) ([]*types.ConceptMastery, error)
}

type masteryService struct {
	masteryRepo repos.ConceptMasteryRepo
	log         *logger.Logger

	// injectable clock
	now func() time.Time
}

func NewMasteryService(masteryRepo repos.ConceptMasteryRepo, baseLog *logger.Logger) MasteryService {
	return &masteryService{
		masteryRepo: masteryRepo,
		log:         baseLog.With("service", "MasteryService"),
		now:         time.Now,
	}
}

func (s *masteryService) RecordAttempt(ctx context.Context, userID, conceptID uuid.UUID, isCorrect bool, difficulty float64) (*types.ConceptMastery, error) {
	if difficulty < 0 {
		difficulty = 0
	} else if difficulty > 1 {
		difficulty = 1
	}

	m, err := s.masteryRepo.GetByUserAndConcept(ctx, nil, userID, conceptID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &types.ConceptMastery{
			UserID:             userID,
			ConceptID:          conceptID,
			RepetitionInterval: 1,
			EaseFactor:         2.5,
		}
	}

	now := s.now()
	ApplyAttempt(m, isCorrect, difficulty, now)

	if err := s.masteryRepo.Save(ctx, nil, m); err != nil {
		return nil, err
	}

	s.log.Debug("Recorded attempt",
		"user_id", userID,
		"concept_id", conceptID,
		"correct", isCorrect,
		"mastery_score", m.MasteryScore,
		"interval_days", m.RepetitionInterval,
	)
	return m, nil
}

// ApplyAttempt mutates m in place with one attempt outcome. Exposed so that
// scheduling math can be exercised without a database.
func ApplyAttempt(m *types.ConceptMastery, isCorrect bool, difficulty float64, now time.Time) {
	m.AttemptsCount++
	if isCorrect {
		m.CorrectAttempts++
		m.LastCorrect = &now
	}
	m.LastPracticed = &now

	// Ease factor moves with outcome and perceived difficulty.
	switch {
	case isCorrect && difficulty < 0.3:
		m.EaseFactor = math.Min(easeFactorMax, m.EaseFactor+0.1)
	case isCorrect && difficulty > 0.7:
		m.EaseFactor = math.Max(easeFactorMin, m.EaseFactor-0.15)
	case !isCorrect:
		m.EaseFactor = math.Max(easeFactorMin, m.EaseFactor-0.2)
	}

	// Interval: grows on success, collapses back to one day on failure.
	if isCorrect {
		if m.RepetitionInterval <= 1 {
			m.RepetitionInterval = 6
		} else {
			m.RepetitionInterval = int(math.Floor(float64(m.RepetitionInterval) * m.EaseFactor))
		}
	} else {
		m.RepetitionInterval = 1
	}

	successRate := float64(m.CorrectAttempts) / float64(m.AttemptsCount)
	m.MasteryScore = successRate * math.Min(1.0, float64(m.AttemptsCount)/10.0)
	m.Confidence = math.Min(1.0, float64(m.AttemptsCount)/10.0)

	next := now.AddDate(0, 0, m.RepetitionInterval)
	m.NextReview = &next

	m.AppendHistory(types.AttemptRecord{
		Timestamp:    now,
		Correct:      isCorrect,
		Difficulty:   difficulty,
		MasteryScore: m.MasteryScore,
		SuccessRate:  successRate,
	})
}

func (s *masteryService) GetDueForReview(ctx context.Context, userID uuid.UUID, language string, limit int) ([]*types.ConceptMastery, error) {
	return s.masteryRepo.GetDueForReview(ctx, nil, userID, language, s.now(), limit)
}

func (s *masteryService) GetByUserAndLanguage(ctx context.Context, userID uuid.UUID, language string) ([]*types.ConceptMastery, error) {
	return s.masteryRepo.GetByUserAndLanguage(ctx, nil, userID, language)
}

// NeedsReview reports whether the row is due: no review scheduled yet, or the
// scheduled time has passed.
func NeedsReview(m *types.ConceptMastery, now time.Time) bool {
	if m == nil {
		return false
	}
	if m.NextReview == nil {
		return true
	}
	return !now.Before(*m.NextReview)
}

// IsMastered requires both a score at or above threshold and at least five
// attempts, so a lucky 1/1 does not count.
func IsMastered(m *types.ConceptMastery, threshold float64) bool {
	if m == nil {
		return false
	}
	return m.MasteryScore >= threshold && m.AttemptsCount >= masteredMinTries
}

func SuccessRatePercent(m *types.ConceptMastery) float64 {
	if m == nil || m.AttemptsCount == 0 {
		return 0
	}
	return 100.0 * float64(m.CorrectAttempts) / float64(m.AttemptsCount)
}

func Classify(m *types.ConceptMastery) MasteryState {
	if m == nil || m.AttemptsCount == 0 {
		return MasteryStateUnseen
	}
	if IsMastered(m, masteredThreshold) {
		return MasteryStateMastered
	}
	if m.MasteryScore >= 0.4 {
		return MasteryStateReviewing
	}
	return MasteryStateLearning
}
