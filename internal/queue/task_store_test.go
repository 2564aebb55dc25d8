package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-fund-audit/internal/modal"
)

func tasks(ids ...int64) []modal.AuditTask {
	out := make([]modal.AuditTask, 0, len(ids))
	for _, id := range ids {
		out = append(out, modal.AuditTask{
			ID:        id,
			BizType:   "REPAIR_FUND",
			RiskLevel: modal.RiskMedium,
			Status:    modal.TaskInit,
		})
	}
	return out
}

func ids(ts []modal.AuditTask) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestTaskStore_RejectsDuplicates(t *testing.T) {
	_, err := NewTaskStore(tasks(1, 2, 1))
	require.ErrorIs(t, err, ErrDuplicateTask)
}

func TestTaskStore_RemoveKeepsOrder(t *testing.T) {
	s, err := NewTaskStore(tasks(1005, 1006, 1001, 1004))
	require.NoError(t, err)

	require.NoError(t, s.Remove(1006))
	assert.Equal(t, []int64{1005, 1001, 1004}, ids(s.List()))

	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, int64(1005), first.ID)
}

func TestTaskStore_RemoveUnknown(t *testing.T) {
	s, err := NewTaskStore(tasks(1, 2))
	require.NoError(t, err)

	err = s.Remove(9)
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 2, s.Len())
}

func TestTaskStore_ListIsACopy(t *testing.T) {
	s, err := NewTaskStore(tasks(1, 2))
	require.NoError(t, err)

	l := s.List()
	l[0].ID = 99

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)
}

func TestTaskStore_Empty(t *testing.T) {
	s, err := NewTaskStore(nil)
	require.NoError(t, err)

	_, ok := s.First()
	assert.False(t, ok)
	assert.Empty(t, s.List())
}
