package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"repair-fund-audit/internal/activities"
	"repair-fund-audit/internal/modal"
)

const TaskQueue = "AUDIT_REVIEW_TASK_QUEUE"
const DecisionSignal = "AUDIT_DECISION_SIGNAL"

// ResultExpired is returned when no decision arrived before the deadline.
const ResultExpired = "EXPIRED"

const (
	QueryTask     = "task"
	QueryDecision = "decision"
	QueryAuditLog = "audit_log"
)

type ReviewInput struct {
	Task modal.AuditTask `json:"task"`
	// Deadline bounds how long the review waits for a decision. Zero waits forever.
	Deadline time.Duration `json:"deadline"`
}

// ReviewWorkflowID is the workflow id used for the review of one task, so a
// second start for the same task lands on the running execution.
func ReviewWorkflowID(taskID int64) string {
	return fmt.Sprintf("audit-review-%d", taskID)
}

type reviewState struct {
	Task     modal.AuditTask     `json:"task"`
	Decision *modal.TaskDecision `json:"decision,omitempty"`
	Audit    []modal.AuditEvent  `json:"audit,omitempty"`
}

func ReviewAuditTask(ctx workflow.Context, in ReviewInput) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("review opened", "taskId", in.Task.ID)

	state := &reviewState{
		Task:  in.Task,
		Audit: make([]modal.AuditEvent, 0),
	}

	appendAudit := func(kind, message string, data map[string]any) {
		state.Audit = append(state.Audit, modal.AuditEvent{
			At:      workflow.Now(ctx),
			Kind:    kind,
			TaskID:  in.Task.ID,
			Message: message,
			Data:    data,
		})
	}

	if err := workflow.SetQueryHandler(ctx, QueryTask, func() (modal.AuditTask, error) {
		return state.Task, nil
	}); err != nil {
		return "", err
	}
	if err := workflow.SetQueryHandler(ctx, QueryDecision, func() (modal.TaskDecision, error) {
		if state.Decision == nil {
			return modal.TaskDecision{}, nil
		}
		return *state.Decision, nil
	}); err != nil {
		return "", err
	}
	if err := workflow.SetQueryHandler(ctx, QueryAuditLog, func() ([]modal.AuditEvent, error) {
		return state.Audit, nil
	}); err != nil {
		return "", err
	}

	appendAudit("REVIEW_OPENED", "audit task waiting for a decision", map[string]any{
		"riskLevel": string(in.Task.RiskLevel),
		"amount":    in.Task.Amount,
	})

	// Archive retries: 1s, 2s, then give up after the third attempt.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	var decision *modal.TaskDecision
	expired := false

	selector := workflow.NewSelector(ctx)
	sigCh := workflow.GetSignalChannel(ctx, DecisionSignal)
	selector.AddReceive(sigCh, func(c workflow.ReceiveChannel, more bool) {
		var d modal.TaskDecision
		c.Receive(ctx, &d)
		if d.TaskID != in.Task.ID {
			appendAudit("DECISION_IGNORED", "decision for another task", map[string]any{"decisionTaskId": d.TaskID})
			logger.Warn("ignoring decision for another task", "taskId", in.Task.ID, "decisionTaskId", d.TaskID)
			return
		}
		decision = &d
	})

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	if in.Deadline > 0 {
		selector.AddFuture(workflow.NewTimer(timerCtx, in.Deadline), func(f workflow.Future) {
			if err := f.Get(timerCtx, nil); err == nil {
				expired = true
			}
		})
	}

	for decision == nil && !expired {
		selector.Select(ctx)
	}

	if decision == nil {
		appendAudit("EXPIRED", "no decision before the deadline", map[string]any{"deadline": in.Deadline.String()})
		logger.Info("review expired", "taskId", in.Task.ID)
		return ResultExpired, nil
	}
	cancelTimer()

	state.Decision = decision
	appendAudit("DECISION_RECEIVED", "decision recorded", map[string]any{
		"decisionId": decision.DecisionID,
		"result":     string(decision.Result),
	})

	var rec activities.ArchiveRecord
	if err := workflow.ExecuteActivity(ctx, "ArchiveDecision", *decision).Get(ctx, &rec); err != nil {
		appendAudit("ERROR", "ArchiveDecision failed", map[string]any{"error": err.Error()})
		logger.Error("failed to archive decision", "taskId", in.Task.ID, "error", err)
		return "", err
	}
	appendAudit("DECISION_ARCHIVED", "decision archived", map[string]any{"decisionId": rec.DecisionID})

	appendAudit("DONE", "review completed", map[string]any{"result": string(decision.Result)})
	return string(decision.Result), nil
}
