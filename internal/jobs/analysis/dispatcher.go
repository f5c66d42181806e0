package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/services"
	"github.com/polyglotta/polyglotta-backend/internal/temporalx"
)

// TemporalDispatcher starts one analysis workflow per message. Workflow IDs
// are derived from the message ID so a redelivered dispatch dedupes instead
// of double-analyzing.
type TemporalDispatcher struct {
	client temporalsdkclient.Client
	log    *logger.Logger
}

func NewTemporalDispatcher(client temporalsdkclient.Client, baseLog *logger.Logger) *TemporalDispatcher {
	return &TemporalDispatcher{
		client: client,
		log:    baseLog.With("dispatcher", "TemporalAnalysis"),
	}
}

func (d *TemporalDispatcher) DispatchAnalysis(ctx context.Context, messageID uuid.UUID) error {
	cfg := temporalx.LoadConfig()
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                 fmt.Sprintf("analyze-message-%s", messageID),
		TaskQueue:          cfg.TaskQueue,
		WorkflowRunTimeout: 15 * time.Minute,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, WorkflowName, WorkflowInput{MessageID: messageID.String()})
	if err != nil {
		return fmt.Errorf("start analysis workflow: %w", err)
	}
	d.log.Debug("Analysis workflow started", "message_id", messageID)
	return nil
}

// InProcessDispatcher runs the analysis on a goroutine with its own timeout.
// Used when Temporal is not configured.
type InProcessDispatcher struct {
	analysis services.AnalysisService
	log      *logger.Logger
	timeout  time.Duration
}

func NewInProcessDispatcher(analysis services.AnalysisService, baseLog *logger.Logger) *InProcessDispatcher {
	return &InProcessDispatcher{
		analysis: analysis,
		log:      baseLog.With("dispatcher", "InProcessAnalysis"),
		timeout:  5 * time.Minute,
	}
}

func (d *InProcessDispatcher) DispatchAnalysis(_ context.Context, messageID uuid.UUID) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if _, err := d.analysis.ProcessMessage(ctx, messageID); err != nil {
			d.log.Error("In-process analysis failed",
				"message_id", messageID,
				"error", err.Error(),
			)
		}
	}()
	return nil
}
