package activities

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"repair-fund-audit/internal/modal"
)

var ErrArchiveNil = errors.New("decision archive is not configured")

// ArchiveRecord is what the archive keeps for one decision.
type ArchiveRecord struct {
	DecisionID string               `json:"decisionId"`
	TaskID     int64                `json:"auditTaskId"`
	Result     modal.DecisionResult `json:"result"`
	Comment    string               `json:"comment"`
	Decider    string               `json:"decider,omitempty"`
	DecidedAt  time.Time            `json:"decidedAt"`
	ArchivedAt time.Time            `json:"archivedAt"`
}

// Archive stores decision records keyed by decision id. Put must be
// idempotent: activity retries may deliver the same record more than once.
type Archive interface {
	Put(ctx context.Context, rec ArchiveRecord) error
}

type Activities struct {
	Archive Archive
}

func (a *Activities) ArchiveDecision(ctx context.Context, d modal.TaskDecision) (ArchiveRecord, error) {
	logger := activity.GetLogger(ctx)

	if a.Archive == nil {
		return ArchiveRecord{}, temporal.NewNonRetryableApplicationError(ErrArchiveNil.Error(), "ArchiveNotConfigured", ErrArchiveNil)
	}
	if d.TaskID <= 0 || d.DecisionID == "" {
		err := fmt.Errorf("decision %q for task %d is incomplete", d.DecisionID, d.TaskID)
		return ArchiveRecord{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidDecision", err)
	}
	if _, err := modal.ParseDecisionResult(string(d.Result)); err != nil {
		return ArchiveRecord{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidDecision", err)
	}

	rec := ArchiveRecord{
		DecisionID: d.DecisionID,
		TaskID:     d.TaskID,
		Result:     d.Result,
		Comment:    d.Comment,
		Decider:    d.Decider,
		DecidedAt:  d.DecidedAt,
		ArchivedAt: time.Now().UTC(),
	}
	if err := a.Archive.Put(ctx, rec); err != nil {
		return ArchiveRecord{}, fmt.Errorf("archive decision %s: %w", d.DecisionID, err)
	}

	logger.Info("decision archived",
		"taskId", d.TaskID,
		"decisionId", d.DecisionID,
		"result", d.Result,
		"attempt", activity.GetInfo(ctx).Attempt,
	)
	return rec, nil
}

// MemoryArchive keeps records in process memory. Good enough for a single
// worker and for tests.
type MemoryArchive struct {
	mu      sync.Mutex
	records map[string]ArchiveRecord
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string]ArchiveRecord)}
}

func (m *MemoryArchive) Put(_ context.Context, rec ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.DecisionID] = rec
	return nil
}

func (m *MemoryArchive) Get(decisionID string) (ArchiveRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[decisionID]
	return rec, ok
}

// List returns all records ordered by decision time.
func (m *MemoryArchive) List() []ArchiveRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ArchiveRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out
}
