package repos

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type GrammarConceptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) (*types.GrammarConcept, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.GrammarConcept, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GrammarConcept, error)
	GetByNameAndLanguage(ctx context.Context, tx *gorm.DB, name, language string) (*types.GrammarConcept, error)
	GetByLanguage(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error)
	// GetByLanguageAndLevels returns concepts at any of the given levels,
	// ordered by complexity ascending.
	GetByLanguageAndLevels(ctx context.Context, tx *gorm.DB, language string, levels []types.CEFRLevel) ([]*types.GrammarConcept, error)
	// SearchByTagOrName matches a tag exactly or the name as a substring.
	SearchByTagOrName(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error)
	SearchByText(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error)
	GetMissingEmbedding(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error)
	UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, vector []float32) error
	Upsert(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) error
	AddPrerequisite(ctx context.Context, tx *gorm.DB, conceptID, prerequisiteID uuid.UUID) error
	PrerequisitesOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error)
	DependentsOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error)
}

type grammarConceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGrammarConceptRepo(db *gorm.DB, baseLog *logger.Logger) GrammarConceptRepo {
	return &grammarConceptRepo{db: db, log: baseLog.With("repo", "GrammarConceptRepo")}
}

func (r *grammarConceptRepo) Create(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) (*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *grammarConceptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.GrammarConcept
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *grammarConceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) GetByNameAndLanguage(ctx context.Context, tx *gorm.DB, name, language string) (*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" || language == "" {
		return nil, nil
	}
	var row types.GrammarConcept
	err := transaction.WithContext(ctx).
		Where("name = ? AND language = ?", name, language).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *grammarConceptRepo) GetByLanguage(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if language == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("language = ?", language).
		Order("complexity_score ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) GetByLanguageAndLevels(ctx context.Context, tx *gorm.DB, language string, levels []types.CEFRLevel) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if language == "" || len(levels) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("language = ? AND cefr_level IN ?", language, levels).
		Order("complexity_score ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) SearchByTagOrName(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if language == "" || term == "" {
		return results, nil
	}
	tagJSON, err := json.Marshal([]string{term})
	if err != nil {
		return nil, err
	}
	q := transaction.WithContext(ctx).
		Where("language = ?", language).
		Where("tags @> ? OR name ILIKE ?", datatypes.JSON(tagJSON), "%"+term+"%").
		Order("complexity_score ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) SearchByText(ctx context.Context, tx *gorm.DB, language, term string, limit int) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if language == "" || term == "" {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("language = ?", language).
		Where("name ILIKE ? OR description ILIKE ?", "%"+term+"%", "%"+term+"%").
		Order("complexity_score ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) GetMissingEmbedding(ctx context.Context, tx *gorm.DB, language string) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	q := transaction.WithContext(ctx).Where("embedding IS NULL")
	if language != "" {
		q = q.Where("language = ?", language)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) UpdateEmbedding(ctx context.Context, tx *gorm.DB, id uuid.UUID, vector []float32) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(vector) == 0 {
		return nil
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Model(&types.GrammarConcept{}).
		Where("id = ?", id).
		Update("embedding", datatypes.JSON(raw)).Error
}

func (r *grammarConceptRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.GrammarConcept) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}, {Name: "language"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "cefr_level", "complexity_score", "tags",
				"example_sentences", "common_errors", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *grammarConceptRepo) AddPrerequisite(ctx context.Context, tx *gorm.DB, conceptID, prerequisiteID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if conceptID == uuid.Nil || prerequisiteID == uuid.Nil || conceptID == prerequisiteID {
		return nil
	}
	concept := types.GrammarConcept{ID: conceptID}
	return transaction.WithContext(ctx).
		Model(&concept).
		Association("Prerequisites").
		Append(&types.GrammarConcept{ID: prerequisiteID})
}

func (r *grammarConceptRepo) PrerequisitesOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if conceptID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Joins("JOIN concept_prerequisite cp ON cp.prerequisite_id = grammar_concept.id").
		Where("cp.concept_id = ?", conceptID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grammarConceptRepo) DependentsOf(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.GrammarConcept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GrammarConcept
	if conceptID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Joins("JOIN concept_prerequisite cp ON cp.concept_id = grammar_concept.id").
		Where("cp.prerequisite_id = ?", conceptID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
