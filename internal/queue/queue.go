// Package queue implements the audit review queue: the ordered pending tasks,
// per-task decision drafts, the current selection with its lazily loaded
// detail, and decision submission.
//
// Every mutation goes through one mutex. Detail fetches run in their own
// goroutines and are applied only if they still belong to the newest
// selection, so a slow response can never overwrite a later choice.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/telemetry"
)

type State string

const (
	StateEmpty   State = "EMPTY"
	StateLoading State = "LOADING"
	StateReady   State = "READY"
	StateFailed  State = "FAILED"
)

// DetailLoader resolves the detail for one task. (nil, nil) means the task
// has no detail, which is a valid outcome and not an error.
type DetailLoader interface {
	Load(ctx context.Context, taskID int64) (*modal.AuditDetail, error)
}

// DecisionSink records a submitted decision somewhere durable.
type DecisionSink interface {
	Submit(ctx context.Context, s modal.Submission) error
}

// Selection is a point-in-time view of the selection. Detail is shared and
// must be treated as read-only.
type Selection struct {
	TaskID          int64              `json:"taskId,omitempty"`
	Task            *modal.AuditTask   `json:"task"`
	State           State              `json:"state"`
	Detail          *modal.AuditDetail `json:"detail"`
	DetailAvailable bool               `json:"detailAvailable"`
	Error           string             `json:"error,omitempty"`
}

type selection struct {
	active bool
	taskID int64
	state  State
	detail *modal.AuditDetail
	err    error
	gen    uint64
	cancel context.CancelFunc
}

type Queue struct {
	mu         sync.Mutex
	tasks      *TaskStore
	drafts     *DraftStore
	sel        selection
	submitting map[int64]bool
	journal    *journal
	closed     bool

	loader       DetailLoader
	sink         DecisionSink
	logger       *slog.Logger
	fetchTimeout time.Duration
	now          func() time.Time
	newID        func() string

	ctx       context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

type Option func(*Queue)

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithFetchTimeout bounds every detail fetch. Default 5s.
func WithFetchTimeout(d time.Duration) Option {
	return func(q *Queue) { q.fetchTimeout = d }
}

// WithJournalSize caps the number of retained queue events. Default 200.
func WithJournalSize(n int) Option {
	return func(q *Queue) { q.journal = newJournal(n) }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(q *Queue) { q.newID = f }
}

func New(tasks []modal.AuditTask, loader DetailLoader, sink DecisionSink, opts ...Option) (*Queue, error) {
	if loader == nil {
		return nil, ErrLoaderNil
	}
	if sink == nil {
		return nil, ErrSinkNil
	}
	store, err := NewTaskStore(tasks)
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	q := &Queue{
		tasks:        store,
		drafts:       NewDraftStore(),
		sel:          selection{state: StateEmpty},
		submitting:   make(map[int64]bool),
		journal:      newJournal(200),
		loader:       loader,
		sink:         sink,
		logger:       logging.Discard(),
		fetchTimeout: 5 * time.Second,
		now:          time.Now,
		newID:        uuid.NewString,
		ctx:          ctx,
		stop:         stop,
	}
	for _, opt := range opts {
		opt(q)
	}
	metricsOnce.Do(initMetrics)
	return q, nil
}

// Start selects the first pending task. Only the first call has any effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		if q.closed || q.sel.active {
			return
		}
		if first, ok := q.tasks.First(); ok {
			q.selectLocked(first, false)
		}
	})
}

// Close cancels any in-flight fetch and waits for loader goroutines to return.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cancelFetchLocked()
		q.stop()
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) Tasks() []modal.AuditTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.List()
}

func (q *Queue) Task(id int64) (modal.AuditTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks.Get(id)
	if !ok {
		return modal.AuditTask{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return t, nil
}

func (q *Queue) Selection() Selection {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.sel.active {
		return Selection{State: StateEmpty}
	}

	out := Selection{TaskID: q.sel.taskID, State: q.sel.state}
	if t, ok := q.tasks.Get(q.sel.taskID); ok {
		out.Task = &t
	}
	if q.sel.state == StateReady {
		out.Detail = q.sel.detail
		out.DetailAvailable = q.sel.detail != nil
	}
	if q.sel.err != nil {
		out.Error = q.sel.err.Error()
	}
	return out
}

// Select makes taskID the current selection and starts loading its detail.
// Reselecting the task that is already Ready is a no-op.
func (q *Queue) Select(taskID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	t, ok := q.tasks.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	q.selectLocked(t, false)
	return nil
}

// Reload refetches the detail of the current selection, whatever its state.
func (q *Queue) Reload() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if !q.sel.active {
		return ErrNotSelected
	}
	t, ok := q.tasks.Get(q.sel.taskID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, q.sel.taskID)
	}
	q.selectLocked(t, true)
	return nil
}

// Clear drops the selection and its detail.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *Queue) Draft(taskID int64) modal.Draft {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drafts.Get(taskID)
}

// Drafts reports how many tasks have an edited draft.
func (q *Queue) Drafts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drafts.Len()
}

// SetDraftField edits one field of a pending task's draft.
func (q *Queue) SetDraftField(taskID int64, field Field, value string) (modal.Draft, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return modal.Draft{}, ErrClosed
	}
	if _, ok := q.tasks.Get(taskID); !ok {
		return modal.Draft{}, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	if q.submitting[taskID] {
		return modal.Draft{}, fmt.Errorf("%w: %d", ErrSubmissionInFlight, taskID)
	}
	if err := q.drafts.SetField(taskID, field, value); err != nil {
		return modal.Draft{}, err
	}

	d := q.drafts.Get(taskID)
	q.record(KindSetDraftField, taskID, "draft field updated", map[string]any{"field": string(field)})
	return d, nil
}

// Journal returns the retained queue events, oldest first.
func (q *Queue) Journal() []modal.AuditEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.journal.list()
}

func (q *Queue) selectLocked(t modal.AuditTask, force bool) {
	if !force && q.sel.active && q.sel.taskID == t.ID && q.sel.state == StateReady {
		return
	}

	q.cancelFetchLocked()
	gen := q.sel.gen + 1
	ctx, cancel := context.WithTimeout(q.ctx, q.fetchTimeout)
	q.sel = selection{
		active: true,
		taskID: t.ID,
		state:  StateLoading,
		gen:    gen,
		cancel: cancel,
	}
	q.record(KindSelect, t.ID, "task selected", nil)
	q.logger.Debug("task selected", "taskId", t.ID, "generation", gen)

	q.wg.Add(1)
	go q.fetch(ctx, t.ID, gen)
}

func (q *Queue) clearLocked() {
	q.cancelFetchLocked()
	wasActive := q.sel.active
	q.sel = selection{state: StateEmpty, gen: q.sel.gen + 1}
	if wasActive {
		q.record(KindClear, 0, "selection cleared", nil)
	}
}

func (q *Queue) cancelFetchLocked() {
	if q.sel.cancel != nil {
		q.sel.cancel()
		q.sel.cancel = nil
	}
}

func (q *Queue) fetch(ctx context.Context, taskID int64, gen uint64) {
	defer q.wg.Done()

	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "queue.fetch_detail")
	span.SetAttributes(attribute.Int64("audit.task_id", taskID))
	defer span.End()

	start := time.Now()
	detail, err := q.loader.Load(ctx, taskID)
	queueMetrics.fetchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	q.resolve(taskID, gen, detail, err)
}

func (q *Queue) resolve(taskID int64, gen uint64, detail *modal.AuditDetail, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || !q.sel.active || q.sel.gen != gen || q.sel.taskID != taskID {
		q.record(KindDetailStale, taskID, "stale detail response discarded", nil)
		q.logger.Debug("stale detail discarded", "taskId", taskID, "generation", gen)
		return
	}
	q.cancelFetchLocked()

	if err == nil && detail != nil && detail.TaskID != taskID {
		err = fmt.Errorf("%w: got %d, want %d", ErrDetailMismatch, detail.TaskID, taskID)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrDetailTimeout, q.fetchTimeout, err)
	}

	if err != nil {
		q.sel.state = StateFailed
		q.sel.err = err
		q.record(KindDetailFailed, taskID, "detail fetch failed", map[string]any{"error": err.Error()})
		q.logger.Warn("detail fetch failed", "taskId", taskID, "error", err)
		return
	}

	q.sel.state = StateReady
	q.sel.detail = detail
	if detail == nil {
		q.record(KindDetailUnavailable, taskID, "no detail available", nil)
		return
	}
	q.record(KindDetailLoaded, taskID, "detail loaded", nil)
}

func (q *Queue) record(kind string, taskID int64, msg string, data map[string]any) {
	q.journal.append(modal.AuditEvent{
		At:      q.now().UTC(),
		Kind:    kind,
		TaskID:  taskID,
		Message: msg,
		Data:    data,
	})
}
