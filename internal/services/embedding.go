package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/polyglotta/polyglotta-backend/internal/clients/redis"
	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

const backfillConcurrency = 4

// EmbeddingService produces and stores concept embeddings: the durable copy
// on the concept row and the query copy in the vector store, namespaced by
// language.
type EmbeddingService interface {
	// EnsureConceptEmbedding embeds the concept if it has no vector yet and
	// upserts it into the store. Oracle failure leaves the row untouched.
	EnsureConceptEmbedding(ctx context.Context, concept *types.GrammarConcept) error
	// EmbedQuery returns the vector for ad-hoc query text, going through the
	// cache first.
	EmbedQuery(ctx context.Context, text, language string) ([]float32, error)
	// BackfillConceptEmbeddings embeds every concept in the language that is
	// missing a vector. Returns how many were embedded.
	BackfillConceptEmbeddings(ctx context.Context, language string) (int, error)
}

type embeddingService struct {
	ai          AIClient
	conceptRepo repos.GrammarConceptRepo
	store       vecstore.Store
	cache       redis.EmbedCache // nil disables memoization
	log         *logger.Logger
}

func NewEmbeddingService(
	ai AIClient,
	conceptRepo repos.GrammarConceptRepo,
	store vecstore.Store,
	cache redis.EmbedCache,
	baseLog *logger.Logger,
) EmbeddingService {
	return &embeddingService{
		ai:          ai,
		conceptRepo: conceptRepo,
		store:       store,
		cache:       cache,
		log:         baseLog.With("service", "EmbeddingService"),
	}
}

// ConceptEmbeddingText is the canonical text embedded for a concept.
func ConceptEmbeddingText(c *types.GrammarConcept) string {
	if strings.TrimSpace(c.Description) == "" {
		return c.Name
	}
	return c.Name + ": " + c.Description
}

func (s *embeddingService) embed(ctx context.Context, text, language string) ([]float32, error) {
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, text, language); ok {
			return vec, nil
		}
	}
	vecs, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	if s.cache != nil {
		s.cache.Set(ctx, text, language, vecs[0])
	}
	return vecs[0], nil
}

func (s *embeddingService) EmbedQuery(ctx context.Context, text, language string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text required")
	}
	return s.embed(ctx, text, language)
}

func (s *embeddingService) EnsureConceptEmbedding(ctx context.Context, concept *types.GrammarConcept) error {
	if concept == nil {
		return nil
	}
	if len(concept.EmbeddingVector()) > 0 {
		return nil
	}

	vec, err := s.embed(ctx, ConceptEmbeddingText(concept), concept.Language)
	if err != nil {
		return err
	}

	if err := s.conceptRepo.UpdateEmbedding(ctx, nil, concept.ID, vec); err != nil {
		return err
	}
	concept.SetEmbeddingVector(vec)

	if err := s.store.Upsert(ctx, concept.Language, []vecstore.Vector{{
		ID:     concept.ID.String(),
		Values: vec,
	}}); err != nil {
		return err
	}
	return nil
}

func (s *embeddingService) BackfillConceptEmbeddings(ctx context.Context, language string) (int, error) {
	missing, err := s.conceptRepo.GetMissingEmbedding(ctx, nil, language)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)

	var mu sync.Mutex
	done := 0

	for _, concept := range missing {
		concept := concept
		g.Go(func() error {
			if err := s.EnsureConceptEmbedding(gctx, concept); err != nil {
				return fmt.Errorf("embed concept %q: %w", concept.Name, err)
			}
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Warn("Embedding backfill stopped early",
			"language", language,
			"embedded", done,
			"missing", len(missing),
			"error", err.Error(),
		)
		return done, err
	}

	s.log.Info("Embedding backfill complete", "language", language, "embedded", done)
	return done, nil
}
