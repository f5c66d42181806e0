package app

import (
	"github.com/polyglotta/polyglotta-backend/internal/clients/redis"
	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/neo4jdb"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/services"
	"github.com/polyglotta/polyglotta-backend/internal/utils"
)

type Services struct {
	AI             services.AIClient
	Embedding      services.EmbeddingService
	Mastery        services.MasteryService
	ErrorPattern   services.ErrorPatternService
	Proficiency    services.ProficiencyService
	ConceptGraph   services.ConceptGraphService
	Recommendation services.RecommendationService
	Analysis       services.AnalysisService
	Chat           services.ChatService
	Seed           services.SeedService
}

// wireServices builds everything except Chat, which waits on the analysis
// dispatcher choice made in New.
func wireServices(log *logger.Logger, reposet Repos, store vecstore.Store, graph *neo4jdb.Client, cache redis.EmbedCache) (Services, error) {
	log.Info("Wiring services...")

	ai, err := services.NewOpenAIClient(log)
	if err != nil {
		return Services{}, err
	}

	embedding := services.NewEmbeddingService(ai, reposet.GrammarConcept, store, cache, log)
	mastery := services.NewMasteryService(reposet.ConceptMastery, log)
	errorPattern := services.NewErrorPatternService(reposet.ErrorPattern, log)
	proficiency := services.NewProficiencyService(reposet.LanguageProfile, reposet.GrammarConcept, reposet.ConceptMastery, log)
	conceptGraph := services.NewConceptGraphService(reposet.GrammarConcept, graph, log)
	recommendation := services.NewRecommendationService(
		reposet.GrammarConcept,
		reposet.ConceptMastery,
		reposet.ErrorPattern,
		reposet.LanguageProfile,
		proficiency,
		embedding,
		store,
		log,
	)
	analysis := services.NewAnalysisService(
		ai,
		reposet.ChatMessage,
		reposet.Conversation,
		reposet.GrammarConcept,
		mastery,
		errorPattern,
		proficiency,
		embedding,
		log,
	)
	seed := services.NewSeedService(reposet.GrammarConcept, conceptGraph, embedding, log)

	return Services{
		AI:             ai,
		Embedding:      embedding,
		Mastery:        mastery,
		ErrorPattern:   errorPattern,
		Proficiency:    proficiency,
		ConceptGraph:   conceptGraph,
		Recommendation: recommendation,
		Analysis:       analysis,
		Seed:           seed,
	}, nil
}

// newEmbedCache is best-effort: without REDIS_ADDR every embed call goes to
// the oracle.
func newEmbedCache(log *logger.Logger) redis.EmbedCache {
	if utils.GetEnv("REDIS_ADDR", "", log) == "" {
		log.Warn("REDIS_ADDR not set; embedding cache disabled")
		return nil
	}
	cache, err := redis.NewEmbedCache(log)
	if err != nil {
		log.Warn("Embedding cache unavailable", "error", err.Error())
		return nil
	}
	return cache
}
