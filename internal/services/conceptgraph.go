package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/neo4jdb"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// ConceptGraphService navigates the prerequisite DAG between grammar
// concepts. Writes go to Postgres; when a neo4j mirror is configured the
// edge is mirrored there too, best-effort.
type ConceptGraphService interface {
	ConceptsAtOrBelow(ctx context.Context, language string, level types.CEFRLevel) ([]*types.GrammarConcept, error)
	PrerequisitesOf(ctx context.Context, conceptID uuid.UUID) ([]*types.GrammarConcept, error)
	DependentsOf(ctx context.Context, conceptID uuid.UUID) ([]*types.GrammarConcept, error)
	AddPrerequisite(ctx context.Context, conceptID, prerequisiteID uuid.UUID) error
	// PrerequisiteClosure returns the transitive prerequisite names via the
	// graph mirror; without one it falls back to a single-hop lookup.
	PrerequisiteClosure(ctx context.Context, conceptID uuid.UUID) ([]string, error)
}

type conceptGraphService struct {
	conceptRepo repos.GrammarConceptRepo
	graph       *neo4jdb.Client // nil when no mirror is configured
	log         *logger.Logger
}

func NewConceptGraphService(conceptRepo repos.GrammarConceptRepo, graph *neo4jdb.Client, baseLog *logger.Logger) ConceptGraphService {
	return &conceptGraphService{
		conceptRepo: conceptRepo,
		graph:       graph,
		log:         baseLog.With("service", "ConceptGraphService"),
	}
}

func (s *conceptGraphService) ConceptsAtOrBelow(ctx context.Context, language string, level types.CEFRLevel) ([]*types.GrammarConcept, error) {
	rank, err := types.LevelRank(level)
	if err != nil {
		return nil, err
	}
	levels := make([]types.CEFRLevel, 0, rank+1)
	for i := 0; i <= rank; i++ {
		levels = append(levels, types.CEFRLevels[i])
	}
	return s.conceptRepo.GetByLanguageAndLevels(ctx, nil, language, levels)
}

func (s *conceptGraphService) PrerequisitesOf(ctx context.Context, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	return s.conceptRepo.PrerequisitesOf(ctx, nil, conceptID)
}

func (s *conceptGraphService) DependentsOf(ctx context.Context, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	return s.conceptRepo.DependentsOf(ctx, nil, conceptID)
}

func (s *conceptGraphService) AddPrerequisite(ctx context.Context, conceptID, prerequisiteID uuid.UUID) error {
	if conceptID == prerequisiteID {
		return nil
	}
	if err := s.conceptRepo.AddPrerequisite(ctx, nil, conceptID, prerequisiteID); err != nil {
		return err
	}
	if s.graph != nil {
		language := ""
		if c, err := s.conceptRepo.GetByID(ctx, nil, conceptID); err == nil && c != nil {
			language = c.Language
		}
		if err := s.graph.MirrorPrerequisite(ctx, conceptID.String(), prerequisiteID.String(), language); err != nil {
			s.log.Warn("Graph mirror write failed",
				"concept_id", conceptID,
				"prerequisite_id", prerequisiteID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

func (s *conceptGraphService) PrerequisiteClosure(ctx context.Context, conceptID uuid.UUID) ([]string, error) {
	if s.graph != nil {
		ids, err := s.graph.PrerequisiteClosure(ctx, conceptID.String())
		if err == nil {
			return ids, nil
		}
		s.log.Warn("Graph mirror read failed, falling back to direct edges",
			"concept_id", conceptID,
			"error", err.Error(),
		)
	}
	direct, err := s.conceptRepo.PrerequisitesOf(ctx, nil, conceptID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(direct))
	for _, c := range direct {
		out = append(out, c.ID.String())
	}
	return out, nil
}
