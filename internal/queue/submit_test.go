package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-fund-audit/internal/modal"
)

func TestSubmit_ClearsDraftAndAdvances(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(t, tasks(1, 2, 3), newFakeLoader(), sink)

	require.NoError(t, q.Select(2))
	_, err := q.SetDraftField(2, FieldResult, "REJECT")
	require.NoError(t, err)
	_, err = q.SetDraftField(2, FieldComment, "bad")
	require.NoError(t, err)

	dec, err := q.Submit(context.Background(), 2, "auditor-7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), dec.TaskID)
	assert.Equal(t, modal.DecisionReject, dec.Result)
	assert.Equal(t, "bad", dec.Comment)
	assert.Equal(t, "auditor-7", dec.Decider)
	assert.NotEmpty(t, dec.DecisionID)

	assert.Equal(t, []int64{1, 3}, ids(q.Tasks()))
	assert.Equal(t, modal.DefaultDraft(), q.Draft(2))
	assert.Equal(t, 0, q.Drafts())

	sel := q.Selection()
	assert.Equal(t, int64(1), sel.TaskID)
	assert.Contains(t, []State{StateLoading, StateReady}, sel.State)

	got := sink.submissions()
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Task.ID)
	assert.Equal(t, dec, got[0].Decision)

	_, err = q.Task(2)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubmit_LastTaskClearsSelection(t *testing.T) {
	q := newQueue(t, tasks(7), newFakeLoader(), &fakeSink{})
	q.Start()

	_, err := q.Submit(context.Background(), 7, "")
	require.NoError(t, err)

	assert.Empty(t, q.Tasks())
	sel := q.Selection()
	assert.Equal(t, StateEmpty, sel.State)
	assert.Nil(t, sel.Detail)
	assert.Nil(t, sel.Task)
}

func TestSubmit_UntouchedDraftSendsDefault(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(t, tasks(1), newFakeLoader(), sink)
	q.Start()
	waitState(t, q, 1, StateReady)

	_, err := q.Submit(context.Background(), 1, "")
	require.NoError(t, err)

	got := sink.submissions()
	require.Len(t, got, 1)
	assert.Equal(t, modal.DecisionPass, got[0].Decision.Result)
	assert.Empty(t, got[0].Decision.Comment)
}

func TestSubmit_RequiresSelection(t *testing.T) {
	sink := &fakeSink{}
	q := newQueue(t, tasks(1, 2), newFakeLoader(), sink)

	_, err := q.Submit(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrNotSelected)

	require.NoError(t, q.Select(1))
	_, err = q.Submit(context.Background(), 2, "")
	require.ErrorIs(t, err, ErrNotSelected)

	assert.Empty(t, sink.submissions())
	assert.Len(t, q.Tasks(), 2)
}

func TestSubmit_WhileLoadingDoesNotWaitForDetail(t *testing.T) {
	loader := newFakeLoader()
	gate := loader.gate(t, 1)
	defer close(gate)
	q := newQueue(t, tasks(1, 2), loader, &fakeSink{})

	q.Start()
	require.Equal(t, StateLoading, q.Selection().State)

	done := make(chan error, 1)
	go func() {
		_, err := q.Submit(context.Background(), 1, "")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on the detail fetch")
	}
	waitState(t, q, 2, StateReady)
}

func TestSubmit_SinkFailureLeavesStateUntouched(t *testing.T) {
	boom := errors.New("archive unavailable")
	sink := &fakeSink{submit: func(context.Context, modal.Submission) error { return boom }}
	q := newQueue(t, tasks(1, 2), newFakeLoader(), sink)
	q.Start()
	waitState(t, q, 1, StateReady)
	_, err := q.SetDraftField(1, FieldResult, "RETURN")
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []int64{1, 2}, ids(q.Tasks()))
	assert.Equal(t, modal.DecisionReturn, q.Draft(1).Result)
	sel := q.Selection()
	assert.Equal(t, int64(1), sel.TaskID)
	assert.Equal(t, StateReady, sel.State)
	assert.Contains(t, journalKinds(q), KindSubmitFailed)

	sink.submit = nil
	_, err = q.Submit(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(q.Tasks()))
}

func TestSubmit_InFlightRejectsEditsAndResubmits(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sink := &fakeSink{submit: func(context.Context, modal.Submission) error {
		close(entered)
		<-release
		return nil
	}}
	q := newQueue(t, tasks(1, 2), newFakeLoader(), sink)
	q.Start()

	done := make(chan error, 1)
	go func() {
		_, err := q.Submit(context.Background(), 1, "")
		done <- err
	}()
	<-entered

	_, err := q.Submit(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = q.SetDraftField(1, FieldComment, "late edit")
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	_, err = q.SetDraftField(2, FieldComment, "other task is fine")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []int64{2}, ids(q.Tasks()))
	assert.Equal(t, "other task is fine", q.Draft(2).Comment)
}

func TestSubmit_KeepsSelectionIfUserMovedOn(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sink := &fakeSink{submit: func(context.Context, modal.Submission) error {
		close(entered)
		<-release
		return nil
	}}
	q := newQueue(t, tasks(1, 2, 3), newFakeLoader(), sink)
	q.Start()

	done := make(chan error, 1)
	go func() {
		_, err := q.Submit(context.Background(), 1, "")
		done <- err
	}()
	<-entered

	require.NoError(t, q.Select(3))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []int64{2, 3}, ids(q.Tasks()))
	waitState(t, q, 3, StateReady)
}

func TestSubmit_RecordsJournal(t *testing.T) {
	q := newQueue(t, tasks(1, 2), newFakeLoader(), &fakeSink{})
	q.Start()
	waitState(t, q, 1, StateReady)

	dec, err := q.Submit(context.Background(), 1, "")
	require.NoError(t, err)

	var submit *modal.AuditEvent
	for _, ev := range q.Journal() {
		ev := ev
		if ev.Kind == KindSubmit {
			submit = &ev
		}
	}
	require.NotNil(t, submit)
	assert.Equal(t, int64(1), submit.TaskID)
	assert.Equal(t, dec.DecisionID, submit.Data["decisionId"])
	assert.Equal(t, "PASS", submit.Data["result"])
}
