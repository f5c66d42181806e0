package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type ConceptMasteryRepo interface {
	GetByUserAndConcept(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error)
	GetByUserAndConceptIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, conceptIDs []uuid.UUID) ([]*types.ConceptMastery, error)
	GetByUserAndLanguage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string) ([]*types.ConceptMastery, error)
	// GetDueForReview returns masteries with next_review <= now, most overdue
	// first, with the concept preloaded.
	GetDueForReview(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string, now time.Time, limit int) ([]*types.ConceptMastery, error)
	GetByConcept(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.ConceptMastery, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error
}

type conceptMasteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptMasteryRepo(db *gorm.DB, baseLog *logger.Logger) ConceptMasteryRepo {
	return &conceptMasteryRepo{db: db, log: baseLog.With("repo", "ConceptMasteryRepo")}
}

func (r *conceptMasteryRepo) GetByUserAndConcept(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || conceptID == uuid.Nil {
		return nil, nil
	}
	var row types.ConceptMastery
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND concept_id = ?", userID, conceptID).
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

func (r *conceptMasteryRepo) GetByUserAndConceptIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, conceptIDs []uuid.UUID) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if userID == uuid.Nil || len(conceptIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND concept_id IN ?", userID, conceptIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptMasteryRepo) GetByUserAndLanguage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if userID == uuid.Nil || language == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Joins("JOIN grammar_concept ON grammar_concept.id = concept_mastery.concept_id").
		Where("concept_mastery.user_id = ? AND grammar_concept.language = ?", userID, language).
		Preload("Concept").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptMasteryRepo) GetDueForReview(ctx context.Context, tx *gorm.DB, userID uuid.UUID, language string, now time.Time, limit int) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if userID == uuid.Nil || language == "" {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Joins("JOIN grammar_concept ON grammar_concept.id = concept_mastery.concept_id").
		Where("concept_mastery.user_id = ? AND grammar_concept.language = ?", userID, language).
		Where("concept_mastery.next_review IS NOT NULL AND concept_mastery.next_review <= ?", now).
		Preload("Concept").
		Order("concept_mastery.next_review ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptMasteryRepo) GetByConcept(ctx context.Context, tx *gorm.DB, conceptID uuid.UUID) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if conceptID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("concept_id = ?", conceptID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptMasteryRepo) Save(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
		return transaction.WithContext(ctx).Create(row).Error
	}
	return transaction.WithContext(ctx).Save(row).Error
}
