package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// AnalysisDispatcher hands a stored message off for asynchronous analysis.
// A dispatch failure is logged and dropped: the chat exchange has already
// been delivered by that point and must not be unwound.
type AnalysisDispatcher interface {
	DispatchAnalysis(ctx context.Context, messageID uuid.UUID) error
}

// ChatService stores conversation turns. The AI tutoring response itself is
// produced upstream; this service owns persistence and analysis dispatch.
type ChatService interface {
	StartConversation(ctx context.Context, userID uuid.UUID, title, language string) (*types.Conversation, error)
	// RecordExchange stores one user message plus the reply and queues the
	// grammar analysis.
	RecordExchange(ctx context.Context, conversationID uuid.UUID, message, response string) (*types.ChatMessage, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*types.ChatMessage, error)
	GetConversations(ctx context.Context, userID uuid.UUID) ([]*types.Conversation, error)
}

type chatService struct {
	convoRepo   repos.ConversationRepo
	messageRepo repos.ChatMessageRepo
	dispatcher  AnalysisDispatcher // nil disables analysis
	log         *logger.Logger
}

func NewChatService(
	convoRepo repos.ConversationRepo,
	messageRepo repos.ChatMessageRepo,
	dispatcher AnalysisDispatcher,
	baseLog *logger.Logger,
) ChatService {
	return &chatService{
		convoRepo:   convoRepo,
		messageRepo: messageRepo,
		dispatcher:  dispatcher,
		log:         baseLog.With("service", "ChatService"),
	}
}

func (s *chatService) StartConversation(ctx context.Context, userID uuid.UUID, title, language string) (*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	convo := &types.Conversation{
		UserID:           userID,
		Title:            strings.TrimSpace(title),
		Language:         language,
		AnalysisLanguage: language,
	}
	if convo.Title == "" {
		convo.Title = "New Conversation"
	}
	if convo.Language == "" {
		convo.Language = "en"
		convo.AnalysisLanguage = "en"
	}
	return s.convoRepo.Create(ctx, nil, convo)
}

func (s *chatService) RecordExchange(ctx context.Context, conversationID uuid.UUID, message, response string) (*types.ChatMessage, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message required")
	}

	row, err := s.messageRepo.Create(ctx, nil, &types.ChatMessage{
		ConversationID: conversationID,
		Message:        message,
		Response:       response,
	})
	if err != nil {
		return nil, err
	}

	if err := s.convoRepo.Touch(ctx, nil, conversationID); err != nil {
		s.log.Warn("Failed to touch conversation",
			"conversation_id", conversationID,
			"error", err.Error(),
		)
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.DispatchAnalysis(ctx, row.ID); err != nil {
			s.log.Error("Failed to dispatch analysis",
				"message_id", row.ID,
				"error", err.Error(),
			)
		}
	}
	return row, nil
}

func (s *chatService) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*types.ChatMessage, error) {
	return s.messageRepo.GetByConversationID(ctx, nil, conversationID)
}

func (s *chatService) GetConversations(ctx context.Context, userID uuid.UUID) ([]*types.Conversation, error) {
	return s.convoRepo.GetByUserID(ctx, nil, userID)
}
