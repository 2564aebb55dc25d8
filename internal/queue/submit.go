package queue

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/telemetry"
)

// Submit commits the draft of the selected task as a final decision.
//
// The sink is awaited before anything changes locally. If it fails the task,
// its draft and the selection are left exactly as they were and the error
// wraps ErrSubmissionFailed. On success the draft is cleared, the task is
// removed and, if the task was still selected, the selection advances to the
// new first task (or is cleared when none remain), all under one lock.
func (q *Queue) Submit(ctx context.Context, taskID int64, decider string) (modal.TaskDecision, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return modal.TaskDecision{}, ErrClosed
	}
	if !q.sel.active || q.sel.taskID != taskID {
		q.mu.Unlock()
		return modal.TaskDecision{}, fmt.Errorf("%w: %d", ErrNotSelected, taskID)
	}
	if q.submitting[taskID] {
		q.mu.Unlock()
		return modal.TaskDecision{}, fmt.Errorf("%w: %d", ErrSubmissionInFlight, taskID)
	}
	task, ok := q.tasks.Get(taskID)
	if !ok {
		q.mu.Unlock()
		return modal.TaskDecision{}, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}

	draft := q.drafts.Get(taskID)
	decision := modal.TaskDecision{
		DecisionID: q.newID(),
		TaskID:     taskID,
		Result:     draft.Result,
		Comment:    draft.Comment,
		Decider:    decider,
		DecidedAt:  q.now().UTC(),
	}
	q.submitting[taskID] = true
	q.mu.Unlock()

	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "queue.submit")
	span.SetAttributes(
		attribute.Int64("audit.task_id", taskID),
		attribute.String("audit.result", string(decision.Result)),
	)
	defer span.End()

	err := q.sink.Submit(ctx, modal.Submission{Task: task, Decision: decision})

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.submitting, taskID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.record(KindSubmitFailed, taskID, "decision submission failed", map[string]any{"error": err.Error()})
		q.logger.Error("decision submission failed", "taskId", taskID, "error", err)
		return modal.TaskDecision{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	q.drafts.Clear(taskID)
	if err := q.tasks.Remove(taskID); err != nil {
		q.logger.Warn("submitted task already gone", "taskId", taskID, "error", err)
	}
	q.record(KindSubmit, taskID, "decision submitted", map[string]any{
		"decisionId": decision.DecisionID,
		"result":     string(decision.Result),
	})
	queueMetrics.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(decision.Result))))
	q.logger.Info("decision submitted",
		"taskId", taskID,
		"decisionId", decision.DecisionID,
		"result", decision.Result,
		"remaining", q.tasks.Len(),
	)

	if q.closed || !q.sel.active || q.sel.taskID != taskID {
		return decision, nil
	}
	if next, ok := q.tasks.First(); ok {
		q.selectLocked(next, false)
	} else {
		q.clearLocked()
	}
	return decision, nil
}
