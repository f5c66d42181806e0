package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

type ChatMessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ChatMessage) (*types.ChatMessage, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChatMessage, error)
	GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.ChatMessage, error)
	SetGrammarAnalysis(ctx context.Context, tx *gorm.DB, id uuid.UUID, analysis string) error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: baseLog.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ChatMessage) (*types.ChatMessage, error) {
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

func (r *chatMessageRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ChatMessage
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

func (r *chatMessageRepo) GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ChatMessage
	if conversationID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chatMessageRepo) SetGrammarAnalysis(ctx context.Context, tx *gorm.DB, id uuid.UUID, analysis string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("id = ?", id).
		Update("grammar_analysis", analysis).Error
}
