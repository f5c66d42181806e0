package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// SeedConcept is one catalog entry in the seed file.
type SeedConcept struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	CEFRLevel        string   `yaml:"cefr_level"`
	ComplexityScore  float64  `yaml:"complexity_score"`
	Tags             []string `yaml:"tags"`
	ExampleSentences []string `yaml:"example_sentences"`
	CommonErrors     []string `yaml:"common_errors"`
	// Prerequisite concept names within the same language.
	Prerequisites []string `yaml:"prerequisites"`
}

// SeedCatalog is the on-disk seed file shape.
type SeedCatalog struct {
	Language string        `yaml:"language"`
	Concepts []SeedConcept `yaml:"concepts"`
}

// SeedService loads the grammar concept reference catalog into the database.
type SeedService interface {
	// SeedFromFile upserts every concept in the yaml catalog, wires
	// prerequisite edges, and backfills missing embeddings best-effort.
	// Returns the number of concepts upserted.
	SeedFromFile(ctx context.Context, path string) (int, error)
}

type seedService struct {
	conceptRepo repos.GrammarConceptRepo
	graph       ConceptGraphService
	embedding   EmbeddingService // nil skips the backfill
	log         *logger.Logger
}

func NewSeedService(
	conceptRepo repos.GrammarConceptRepo,
	graph ConceptGraphService,
	embedding EmbeddingService,
	baseLog *logger.Logger,
) SeedService {
	return &seedService{
		conceptRepo: conceptRepo,
		graph:       graph,
		embedding:   embedding,
		log:         baseLog.With("service", "SeedService"),
	}
}

func (s *seedService) SeedFromFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed catalog: %w", err)
	}

	var catalog SeedCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return 0, fmt.Errorf("parse seed catalog: %w", err)
	}
	if catalog.Language == "" {
		return 0, fmt.Errorf("seed catalog missing language")
	}

	count := 0
	for _, entry := range catalog.Concepts {
		if entry.Name == "" {
			continue
		}
		level := types.CEFRLevel(entry.CEFRLevel)
		if _, err := types.LevelRank(level); err != nil {
			s.log.Warn("Skipping seed concept with bad level",
				"name", entry.Name,
				"cefr_level", entry.CEFRLevel,
			)
			continue
		}

		concept := &types.GrammarConcept{
			Name:            entry.Name,
			Language:        catalog.Language,
			Description:     entry.Description,
			CEFRLevel:       level,
			ComplexityScore: entry.ComplexityScore,
		}
		concept.SetTagList(entry.Tags)
		concept.ExampleSentences = encodeSeedList(entry.ExampleSentences)
		concept.CommonErrors = encodeSeedList(entry.CommonErrors)

		if err := s.conceptRepo.Upsert(ctx, nil, concept); err != nil {
			return count, fmt.Errorf("upsert concept %q: %w", entry.Name, err)
		}
		count++
	}

	// Second pass so edges can point at concepts seeded later in the file.
	for _, entry := range catalog.Concepts {
		if len(entry.Prerequisites) == 0 {
			continue
		}
		concept, err := s.conceptRepo.GetByNameAndLanguage(ctx, nil, entry.Name, catalog.Language)
		if err != nil || concept == nil {
			continue
		}
		for _, prereqName := range entry.Prerequisites {
			prereq, err := s.conceptRepo.GetByNameAndLanguage(ctx, nil, prereqName, catalog.Language)
			if err != nil || prereq == nil {
				s.log.Warn("Seed prerequisite not found",
					"concept", entry.Name,
					"prerequisite", prereqName,
				)
				continue
			}
			if err := s.graph.AddPrerequisite(ctx, concept.ID, prereq.ID); err != nil {
				s.log.Warn("Failed to wire seed prerequisite",
					"concept", entry.Name,
					"prerequisite", prereqName,
					"error", err.Error(),
				)
			}
		}
	}

	if s.embedding != nil {
		if _, err := s.embedding.BackfillConceptEmbeddings(ctx, catalog.Language); err != nil {
			s.log.Warn("Seed embedding backfill incomplete",
				"language", catalog.Language,
				"error", err.Error(),
			)
		}
	}

	s.log.Info("Seed catalog loaded", "language", catalog.Language, "concepts", count)
	return count, nil
}

func encodeSeedList(items []string) datatypes.JSON {
	if len(items) == 0 {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
