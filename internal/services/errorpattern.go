package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

const (
	// descriptionMatchPrefixLen bounds the fuzzy match so the comparison key
	// stays stable as descriptions get elaborated over time.
	descriptionMatchPrefixLen = 50

	persistentFrequencyThreshold = 3
	recentWindowDays             = 7
)

// ErrorPatternService aggregates individual mistakes into recurring patterns
// per user.
type ErrorPatternService interface {
	// RecordError matches against the user's existing patterns of the same
	// type and either increments the match or creates a new pattern.
	RecordError(ctx context.Context, userID uuid.UUID, errorType, description, example, correction string) (*types.ErrorPattern, error)
	Resolve(ctx context.Context, patternID uuid.UUID) (*types.ErrorPattern, error)
	GetRecentPersistent(ctx context.Context, userID uuid.UUID, limit int) ([]*types.ErrorPattern, error)
	LinkConcept(ctx context.Context, patternID, conceptID uuid.UUID) error
}

type errorPatternService struct {
	patternRepo repos.ErrorPatternRepo
	log         *logger.Logger

	now func() time.Time
}

func NewErrorPatternService(patternRepo repos.ErrorPatternRepo, baseLog *logger.Logger) ErrorPatternService {
	return &errorPatternService{
		patternRepo: patternRepo,
		log:         baseLog.With("service", "ErrorPatternService"),
		now:         time.Now,
	}
}

func (s *errorPatternService) RecordError(ctx context.Context, userID uuid.UUID, errorType, description, example, correction string) (*types.ErrorPattern, error) {
	category := types.NormalizeErrorCategory(errorType)
	description = strings.TrimSpace(description)
	if description == "" {
		description = string(category)
	}

	existing, err := s.patternRepo.GetByUserAndType(ctx, nil, userID, category)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, p := range existing {
		if descriptionsMatch(p.Description, description) {
			applyOccurrence(p, example, correction, now)
			if err := s.patternRepo.Save(ctx, nil, p); err != nil {
				return nil, err
			}
			s.log.Debug("Error pattern recurred",
				"user_id", userID,
				"pattern_id", p.ID,
				"error_type", category,
				"frequency", p.Frequency,
			)
			return p, nil
		}
	}

	p := &types.ErrorPattern{
		UserID:      userID,
		ErrorType:   category,
		Description: description,
		Frequency:   1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	p.AppendExample(example)
	p.AppendCorrection(correction)
	created, err := s.patternRepo.Create(ctx, nil, p)
	if err != nil {
		return nil, err
	}
	s.log.Debug("New error pattern",
		"user_id", userID,
		"error_type", category,
		"description", description,
	)
	return created, nil
}

// descriptionsMatch compares the stored description with an incoming one via
// substring containment over lowercase 50-char prefixes, both directions, so
// "missing article" and "missing article before noun" land on one pattern.
func descriptionsMatch(stored, incoming string) bool {
	a := matchKey(stored)
	b := matchKey(incoming)
	if a == "" || b == "" {
		return a == b
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func matchKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > descriptionMatchPrefixLen {
		s = s[:descriptionMatchPrefixLen]
	}
	return s
}

func applyOccurrence(p *types.ErrorPattern, example, correction string, now time.Time) {
	p.Frequency++
	p.LastSeen = now
	p.AppendExample(example)
	p.AppendCorrection(correction)
}

func (s *errorPatternService) Resolve(ctx context.Context, patternID uuid.UUID) (*types.ErrorPattern, error) {
	p, err := s.patternRepo.GetByID(ctx, nil, patternID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if p.IsResolved {
		return p, nil
	}
	now := s.now()
	p.IsResolved = true
	p.ResolvedAt = &now
	if err := s.patternRepo.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *errorPatternService) GetRecentPersistent(ctx context.Context, userID uuid.UUID, limit int) ([]*types.ErrorPattern, error) {
	since := s.now().AddDate(0, 0, -recentWindowDays)
	return s.patternRepo.GetRecentPersistent(ctx, nil, userID, since, 2, limit)
}

func (s *errorPatternService) LinkConcept(ctx context.Context, patternID, conceptID uuid.UUID) error {
	return s.patternRepo.AddRelatedConcept(ctx, nil, patternID, conceptID)
}

// IsPersistent reports whether an unresolved pattern has recurred enough to
// warrant targeted practice.
func IsPersistent(p *types.ErrorPattern, threshold int) bool {
	if p == nil {
		return false
	}
	if threshold <= 0 {
		threshold = persistentFrequencyThreshold
	}
	return !p.IsResolved && p.Frequency >= threshold
}

func IsRecent(p *types.ErrorPattern, now time.Time, days int) bool {
	if p == nil {
		return false
	}
	if days <= 0 {
		days = recentWindowDays
	}
	return !p.LastSeen.Before(now.AddDate(0, 0, -days))
}
