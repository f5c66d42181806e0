package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// AnalysisService runs the full post-message pipeline: oracle call, mastery
// updates, error aggregation, profile blend, and persisting the analysis back
// onto the message row. It is invoked asynchronously; chat delivery never
// waits on it.
type AnalysisService interface {
	// ProcessMessage analyzes one user message. Oracle failure degrades to a
	// conservative default; persistence errors for individual concepts or
	// patterns are logged and skipped so one bad row cannot sink the run.
	ProcessMessage(ctx context.Context, messageID uuid.UUID) (*types.GrammarAnalysis, error)
}

type analysisService struct {
	ai           AIClient
	messageRepo  repos.ChatMessageRepo
	convoRepo    repos.ConversationRepo
	conceptRepo  repos.GrammarConceptRepo
	mastery      MasteryService
	errorPattern ErrorPatternService
	proficiency  ProficiencyService
	embedding    EmbeddingService
	log          *logger.Logger
}

func NewAnalysisService(
	ai AIClient,
	messageRepo repos.ChatMessageRepo,
	convoRepo repos.ConversationRepo,
	conceptRepo repos.GrammarConceptRepo,
	mastery MasteryService,
	errorPattern ErrorPatternService,
	proficiency ProficiencyService,
	embedding EmbeddingService,
	baseLog *logger.Logger,
) AnalysisService {
	return &analysisService{
		ai:           ai,
		messageRepo:  messageRepo,
		convoRepo:    convoRepo,
		conceptRepo:  conceptRepo,
		mastery:      mastery,
		errorPattern: errorPattern,
		proficiency:  proficiency,
		embedding:    embedding,
		log:          baseLog.With("service", "AnalysisService"),
	}
}

func (s *analysisService) ProcessMessage(ctx context.Context, messageID uuid.UUID) (*types.GrammarAnalysis, error) {
	msg, err := s.messageRepo.GetByID(ctx, nil, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		s.log.Warn("Message not found for analysis", "message_id", messageID)
		return nil, nil
	}

	convo, err := s.convoRepo.GetByID(ctx, nil, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if convo == nil {
		s.log.Warn("Conversation not found for analysis", "message_id", messageID)
		return nil, nil
	}

	userID := convo.UserID
	language := convo.Language

	profile, err := s.proficiency.GetOrCreateProfile(ctx, userID, language)
	if err != nil {
		return nil, err
	}

	analysis, err := s.ai.AnalyzeText(ctx, msg.Message, language, profile)
	if err != nil {
		s.log.Warn("Analysis oracle failed, substituting degraded analysis",
			"message_id", messageID,
			"error", err.Error(),
		)
		analysis = types.DegradedAnalysis(profile.CurrentLevel)
	}

	s.applyConceptUsages(ctx, userID, language, analysis)
	s.applyErrors(ctx, userID, language, analysis)

	if _, err := s.proficiency.ApplyAnalysis(ctx, userID, language, analysis); err != nil {
		s.log.Error("Failed to apply analysis to profile",
			"user_id", userID,
			"language", language,
			"error", err.Error(),
		)
	}
	if _, err := s.proficiency.UpdateStreak(ctx, userID, language); err != nil {
		s.log.Error("Failed to update streak", "user_id", userID, "error", err.Error())
	}

	if raw, marshalErr := json.Marshal(analysis); marshalErr == nil {
		if err := s.messageRepo.SetGrammarAnalysis(ctx, nil, messageID, string(raw)); err != nil {
			s.log.Error("Failed to persist analysis on message",
				"message_id", messageID,
				"error", err.Error(),
			)
		}
	}

	return analysis, nil
}

func (s *analysisService) applyConceptUsages(ctx context.Context, userID uuid.UUID, language string, analysis *types.GrammarAnalysis) {
	for _, usage := range analysis.ConceptsUsed {
		concept, err := s.getOrCreateConcept(ctx, usage.ConceptName, usage.Description, language)
		if err != nil {
			s.log.Warn("Failed to resolve concept from analysis",
				"concept_name", usage.ConceptName,
				"error", err.Error(),
			)
			continue
		}
		if concept == nil || !usage.Attempted {
			continue
		}
		if _, err := s.mastery.RecordAttempt(ctx, userID, concept.ID, usage.Correct, usage.Difficulty); err != nil {
			s.log.Warn("Failed to record attempt",
				"user_id", userID,
				"concept_id", concept.ID,
				"error", err.Error(),
			)
		}
	}
}

func (s *analysisService) applyErrors(ctx context.Context, userID uuid.UUID, language string, analysis *types.GrammarAnalysis) {
	for _, detail := range analysis.Errors {
		pattern, err := s.errorPattern.RecordError(ctx, userID,
			detail.ErrorType, detail.Explanation, detail.OriginalText, detail.CorrectedText)
		if err != nil {
			s.log.Warn("Failed to record error pattern",
				"user_id", userID,
				"error_type", detail.ErrorType,
				"error", err.Error(),
			)
			continue
		}
		if pattern == nil {
			continue
		}
		for _, name := range detail.RelatedConcepts {
			concept, err := s.getOrCreateConcept(ctx, name, "", language)
			if err != nil || concept == nil {
				continue
			}
			if err := s.errorPattern.LinkConcept(ctx, pattern.ID, concept.ID); err != nil {
				s.log.Warn("Failed to link concept to pattern",
					"pattern_id", pattern.ID,
					"concept_id", concept.ID,
					"error", err.Error(),
				)
			}
		}
	}
}

// getOrCreateConcept resolves an oracle-named concept, creating it organically
// on first sight. The embedding is ensured best-effort; an embedding failure
// leaves the concept usable for everything but similarity search.
func (s *analysisService) getOrCreateConcept(ctx context.Context, name, description, language string) (*types.GrammarConcept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	concept, err := s.conceptRepo.GetByNameAndLanguage(ctx, nil, name, language)
	if err != nil {
		return nil, err
	}
	if concept == nil {
		concept = &types.GrammarConcept{
			Name:        name,
			Language:    language,
			Description: description,
			CEFRLevel:   types.CEFRLevelA1,
		}
		if concept, err = s.conceptRepo.Create(ctx, nil, concept); err != nil {
			return nil, err
		}
		s.log.Debug("Concept created organically", "name", name, "language", language)
	}

	if err := s.embedding.EnsureConceptEmbedding(ctx, concept); err != nil {
		s.log.Warn("Embedding skipped for concept",
			"concept_id", concept.ID,
			"error", err.Error(),
		)
	}
	return concept, nil
}
