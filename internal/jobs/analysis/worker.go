package analysis

import (
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/temporalx"
)

// NewWorker builds a Temporal worker with the analysis workflow and
// activities registered. The caller owns Start/Stop.
func NewWorker(c temporalsdkclient.Client, acts *Activities, log *logger.Logger) worker.Worker {
	cfg := temporalx.LoadConfig()
	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	w.RegisterWorkflowWithOptions(AnalyzeMessageWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.AnalyzeMessage, activity.RegisterOptions{Name: ActivityName})

	log.Info("Analysis worker registered", "task_queue", cfg.TaskQueue)
	return w
}
