// Package decision holds the sinks that receive submitted audit decisions.
package decision

import (
	"context"
	"log/slog"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
)

// Sink is the decision-submission collaborator of the queue.
type Sink interface {
	Submit(ctx context.Context, s modal.Submission) error
}

// LogSink only logs decisions. It never fails.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Submit(_ context.Context, sub modal.Submission) error {
	s.logger.Info("audit decision",
		"taskId", sub.Decision.TaskID,
		"decisionId", sub.Decision.DecisionID,
		"result", sub.Decision.Result,
		"comment", sub.Decision.Comment,
		"decider", sub.Decision.Decider,
		"community", sub.Task.CommunityName,
		"project", sub.Task.ProjectName,
	)
	return nil
}
