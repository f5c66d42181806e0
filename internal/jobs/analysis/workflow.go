package analysis

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	WorkflowName = "AnalyzeMessageWorkflow"
	ActivityName = "AnalyzeMessageActivity"
)

// WorkflowInput identifies the message to analyze.
type WorkflowInput struct {
	MessageID string `json:"message_id"`
}

// AnalyzeMessageWorkflow runs the grammar analysis activity with retries.
// The workflow itself never fails the chat exchange; after retries are
// exhausted the analysis simply stays pending on the message row.
func AnalyzeMessageWorkflow(ctx workflow.Context, input WorkflowInput) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    4,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	return workflow.ExecuteActivity(ctx, ActivityName, input).Get(ctx, nil)
}
