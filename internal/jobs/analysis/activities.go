package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/services"
)

// Activities holds the analysis activity implementations registered on the
// worker.
type Activities struct {
	analysis services.AnalysisService
	log      *logger.Logger
}

func NewActivities(analysis services.AnalysisService, baseLog *logger.Logger) *Activities {
	return &Activities{
		analysis: analysis,
		log:      baseLog.With("activity", "Analysis"),
	}
}

func (a *Activities) AnalyzeMessage(ctx context.Context, input WorkflowInput) error {
	messageID, err := uuid.Parse(input.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", input.MessageID, err)
	}
	_, err = a.analysis.ProcessMessage(ctx, messageID)
	return err
}
