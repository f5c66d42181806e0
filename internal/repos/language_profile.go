package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type LanguageProfileRepo interface {
	GetByUserAndLanguage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error)
	GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LanguageProfile, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.LanguageProfile) error
}

type languageProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLanguageProfileRepo(db *gorm.DB, baseLog *logger.Logger) LanguageProfileRepo {
	return &languageProfileRepo{db: db, log: baseLog.With("repo", "LanguageProfileRepo")}
}

func (r *languageProfileRepo) GetByUserAndLanguage(ctx context.Context, tx *gorm.DB, userID uuid.UUID, targetLanguage string) (*types.LanguageProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || targetLanguage == "" {
		return nil, nil
	}
	var row types.LanguageProfile
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND target_language = ?", userID, targetLanguage).
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

func (r *languageProfileRepo) GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LanguageProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LanguageProfile
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND is_active = true", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *languageProfileRepo) Save(ctx context.Context, tx *gorm.DB, row *types.LanguageProfile) error {
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
