package queue

import (
	"fmt"
	"slices"

	"repair-fund-audit/internal/modal"
)

// TaskStore holds pending tasks in insertion order. It is not safe for
// concurrent use; Queue serializes access.
type TaskStore struct {
	tasks []modal.AuditTask
}

func NewTaskStore(tasks []modal.AuditTask) (*TaskStore, error) {
	seen := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTask, t.ID)
		}
		seen[t.ID] = true
	}
	return &TaskStore{tasks: slices.Clone(tasks)}, nil
}

// List returns a copy of the pending tasks in their original relative order.
func (s *TaskStore) List() []modal.AuditTask {
	return slices.Clone(s.tasks)
}

func (s *TaskStore) Len() int {
	return len(s.tasks)
}

func (s *TaskStore) Get(id int64) (modal.AuditTask, bool) {
	i := s.index(id)
	if i < 0 {
		return modal.AuditTask{}, false
	}
	return s.tasks[i], true
}

func (s *TaskStore) First() (modal.AuditTask, bool) {
	if len(s.tasks) == 0 {
		return modal.AuditTask{}, false
	}
	return s.tasks[0], true
}

// Remove deletes the task with id. Drafts are the caller's concern.
func (s *TaskStore) Remove(id int64) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return nil
}

func (s *TaskStore) index(id int64) int {
	return slices.IndexFunc(s.tasks, func(t modal.AuditTask) bool { return t.ID == id })
}
