package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type ErrorPatternRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) (*types.ErrorPattern, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ErrorPattern, error)
	GetByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, errorType types.ErrorCategory) ([]*types.ErrorPattern, error)
	GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ErrorPattern, error)
	// GetRecentPersistent returns unresolved patterns seen since the cutoff
	// with frequency >= minFrequency, highest frequency first, related
	// concepts preloaded.
	GetRecentPersistent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, minFrequency, limit int) ([]*types.ErrorPattern, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) error
	AddRelatedConcept(ctx context.Context, tx *gorm.DB, patternID, conceptID uuid.UUID) error
}

type errorPatternRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewErrorPatternRepo(db *gorm.DB, baseLog *logger.Logger) ErrorPatternRepo {
	return &errorPatternRepo{db: db, log: baseLog.With("repo", "ErrorPatternRepo")}
}

func (r *errorPatternRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) (*types.ErrorPattern, error) {
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

func (r *errorPatternRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ErrorPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ErrorPattern
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

func (r *errorPatternRepo) GetByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, errorType types.ErrorCategory) ([]*types.ErrorPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ErrorPattern
	if userID == uuid.Nil || errorType == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND error_type = ?", userID, errorType).
		Order("last_seen DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *errorPatternRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ErrorPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ErrorPattern
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("frequency DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *errorPatternRepo) GetRecentPersistent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, minFrequency, limit int) ([]*types.ErrorPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ErrorPattern
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND is_resolved = false", userID).
		Where("frequency >= ? AND last_seen >= ?", minFrequency, since).
		Preload("RelatedConcepts").
		Order("frequency DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *errorPatternRepo) Save(ctx context.Context, tx *gorm.DB, row *types.ErrorPattern) error {
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

func (r *errorPatternRepo) AddRelatedConcept(ctx context.Context, tx *gorm.DB, patternID, conceptID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if patternID == uuid.Nil || conceptID == uuid.Nil {
		return nil
	}
	pattern := types.ErrorPattern{ID: patternID}
	return transaction.WithContext(ctx).
		Model(&pattern).
		Association("RelatedConcepts").
		Append(&types.GrammarConcept{ID: conceptID})
}
