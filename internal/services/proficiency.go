package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

const (
	// ewmaOldWeight keeps the profile stable against single noisy analyses.
	ewmaOldWeight = 0.8
	ewmaNewWeight = 0.2

	accuracyWeight = 0.6
	fluencyWeight  = 0.4

	levelUpThreshold = 0.8
)

// ProficiencyService folds analysis results into the per-language profile and
// tracks daily activity streaks.
type ProficiencyService interface {
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error)
	// ApplyAnalysis blends the oracle's assessment into the rolling profile
	// and merges weak/strong areas. The profile is persisted.
	ApplyAnalysis(ctx context.Context, userID uuid.UUID, targetLanguage string, analysis *types.GrammarAnalysis) (*types.LanguageProfile, error)
	// UpdateStreak records activity now: consecutive days extend the streak,
	// a gap starts a new one-day streak, a second touch today is a no-op.
	UpdateStreak(ctx context.Context, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error)
	IsReadyForNextLevel(ctx context.Context, profile *types.LanguageProfile) (bool, error)
	PromoteLevel(ctx context.Context, profile *types.LanguageProfile) (*types.LanguageProfile, error)
}

type proficiencyService struct {
	profileRepo repos.LanguageProfileRepo
	conceptRepo repos.GrammarConceptRepo
	masteryRepo repos.ConceptMasteryRepo
	log         *logger.Logger

	now func() time.Time
}

func NewProficiencyService(
	profileRepo repos.LanguageProfileRepo,
	conceptRepo repos.GrammarConceptRepo,
	masteryRepo repos.ConceptMasteryRepo,
	baseLog *logger.Logger,
) ProficiencyService {
	return &proficiencyService{
		profileRepo: profileRepo,
		conceptRepo: conceptRepo,
		masteryRepo: masteryRepo,
		log:         baseLog.With("service", "ProficiencyService"),
		now:         time.Now,
	}
}

func (s *proficiencyService) GetOrCreateProfile(ctx context.Context, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error) {
	profile, err := s.profileRepo.GetByUserAndLanguage(ctx, nil, userID, targetLanguage)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}
	profile = &types.LanguageProfile{
		UserID:         userID,
		TargetLanguage: targetLanguage,
		CurrentLevel:   types.CEFRLevelA1,
		IsActive:       true,
	}
	if err := s.profileRepo.Save(ctx, nil, profile); err != nil {
		return nil, err
	}
	s.log.Info("Created language profile", "user_id", userID, "language", targetLanguage)
	return profile, nil
}

func (s *proficiencyService) ApplyAnalysis(ctx context.Context, userID uuid.UUID, targetLanguage string, analysis *types.GrammarAnalysis) (*types.LanguageProfile, error) {
	if analysis == nil {
		return nil, nil
	}
	profile, err := s.GetOrCreateProfile(ctx, userID, targetLanguage)
	if err != nil {
		return nil, err
	}

	BlendAnalysis(profile, analysis)

	if err := s.profileRepo.Save(ctx, nil, profile); err != nil {
		return nil, err
	}
	s.log.Debug("Applied analysis to profile",
		"user_id", userID,
		"language", targetLanguage,
		"proficiency_score", profile.ProficiencyScore,
		"degraded", analysis.Degraded,
	)
	return profile, nil
}

// BlendAnalysis folds one analysis into the profile in place. A profile that
// has never been scored takes the analysis values directly, including the
// oracle's estimated level; afterwards every update is an exponential moving
// average so one conversation cannot swing the estimate.
func BlendAnalysis(profile *types.LanguageProfile, analysis *types.GrammarAnalysis) {
	firstTouch := profile.ProficiencyScore == 0 && profile.GrammarAccuracy == 0 && profile.FluencyScore == 0

	if firstTouch {
		profile.GrammarAccuracy = analysis.AccuracyScore
		profile.FluencyScore = analysis.Proficiency.FluencyScore
		if _, err := types.LevelRank(analysis.Proficiency.EstimatedLevel); err == nil {
			profile.CurrentLevel = analysis.Proficiency.EstimatedLevel
		}
	} else {
		profile.GrammarAccuracy = profile.GrammarAccuracy*ewmaOldWeight + analysis.AccuracyScore*ewmaNewWeight
		profile.FluencyScore = profile.FluencyScore*ewmaOldWeight + analysis.Proficiency.FluencyScore*ewmaNewWeight
	}
	profile.ProficiencyScore = accuracyWeight*profile.GrammarAccuracy + fluencyWeight*profile.FluencyScore
	profile.Confidence = analysis.Proficiency.Confidence

	if len(analysis.Weaknesses) > 0 {
		profile.SetWeakAreaList(types.MergeAreas(profile.WeakAreaList(), analysis.Weaknesses))
	}
	if len(analysis.Strengths) > 0 {
		profile.SetStrongAreaList(types.MergeAreas(profile.StrongAreaList(), analysis.Strengths))
	}
}

func (s *proficiencyService) UpdateStreak(ctx context.Context, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error) {
	profile, err := s.GetOrCreateProfile(ctx, userID, targetLanguage)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if ApplyActivity(profile, now) {
		if err := s.profileRepo.Save(ctx, nil, profile); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// ApplyActivity updates streak state for an activity at now and reports
// whether anything changed. Streaks count calendar days in the activity's
// local time.
func ApplyActivity(profile *types.LanguageProfile, now time.Time) bool {
	today := truncateToDay(now)

	if profile.LastActivityAt == nil {
		profile.CurrentStreak = 1
		profile.LongestStreak = maxInt(profile.LongestStreak, 1)
		profile.LastActivityAt = &now
		return true
	}

	last := truncateToDay(*profile.LastActivityAt)
	switch days := int(today.Sub(last).Hours() / 24); {
	case days == 0:
		return false
	case days == 1:
		profile.CurrentStreak++
	default:
		profile.CurrentStreak = 1
	}
	profile.LongestStreak = maxInt(profile.LongestStreak, profile.CurrentStreak)
	profile.LastActivityAt = &now
	return true
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// IsReadyForNextLevel checks both the blended proficiency score and the
// mastered fraction of the current level's concept set. A level with no
// cataloged concepts gates on the score alone.
func (s *proficiencyService) IsReadyForNextLevel(ctx context.Context, profile *types.LanguageProfile) (bool, error) {
	if profile == nil {
		return false, nil
	}
	if profile.CurrentLevel == types.CEFRLevelC2 {
		return false, nil
	}
	if profile.ProficiencyScore < levelUpThreshold {
		return false, nil
	}

	concepts, err := s.conceptRepo.GetByLanguageAndLevels(ctx, nil, profile.TargetLanguage, []types.CEFRLevel{profile.CurrentLevel})
	if err != nil {
		return false, err
	}
	if len(concepts) == 0 {
		return true, nil
	}

	ids := make([]uuid.UUID, 0, len(concepts))
	for _, c := range concepts {
		ids = append(ids, c.ID)
	}
	masteries, err := s.masteryRepo.GetByUserAndConceptIDs(ctx, nil, profile.UserID, ids)
	if err != nil {
		return false, err
	}

	mastered := 0
	for _, m := range masteries {
		if IsMastered(m, masteredThreshold) {
			mastered++
		}
	}
	fraction := float64(mastered) / float64(len(concepts))
	return fraction >= levelUpThreshold, nil
}

func (s *proficiencyService) PromoteLevel(ctx context.Context, profile *types.LanguageProfile) (*types.LanguageProfile, error) {
	if profile == nil {
		return nil, nil
	}
	next, err := types.NextLevel(profile.CurrentLevel)
	if err != nil {
		return nil, err
	}
	if next == profile.CurrentLevel {
		return profile, nil
	}
	profile.CurrentLevel = next
	if err := s.profileRepo.Save(ctx, nil, profile); err != nil {
		return nil, err
	}
	s.log.Info("Level promoted",
		"user_id", profile.UserID,
		"language", profile.TargetLanguage,
		"level", profile.CurrentLevel,
	)
	return profile, nil
}
