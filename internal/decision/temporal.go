package decision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/workflows"
)

// Signaler is the part of client.Client the Temporal sink needs.
type Signaler interface {
	SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{},
		options client.StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (client.WorkflowRun, error)
}

// TemporalSink hands each decision to the review workflow of its task,
// starting the workflow if it is not running yet.
type TemporalSink struct {
	client    Signaler
	taskQueue string
	deadline  time.Duration
	logger    *slog.Logger
}

func NewTemporalSink(c Signaler, taskQueue string, deadline time.Duration, logger *slog.Logger) *TemporalSink {
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TemporalSink{client: c, taskQueue: taskQueue, deadline: deadline, logger: logger}
}

func (s *TemporalSink) Submit(ctx context.Context, sub modal.Submission) error {
	// A completed review rejects the start, so a task can only be decided once.
	opts := client.StartWorkflowOptions{
		ID:                    workflows.ReviewWorkflowID(sub.Task.ID),
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	in := workflows.ReviewInput{Task: sub.Task, Deadline: s.deadline}

	run, err := s.client.SignalWithStartWorkflow(ctx, opts.ID, workflows.DecisionSignal, sub.Decision,
		opts, workflows.ReviewAuditTask, in)
	if err != nil {
		return fmt.Errorf("signal review workflow %s: %w", opts.ID, err)
	}

	s.logger.Info("decision signalled",
		"taskId", sub.Task.ID,
		"decisionId", sub.Decision.DecisionID,
		"workflowId", run.GetID(),
		"runId", run.GetRunID(),
	)
	return nil
}
