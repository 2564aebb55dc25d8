package queue

import (
	"fmt"

	"repair-fund-audit/internal/modal"
)

type Field string

const (
	FieldResult  Field = "result"
	FieldComment Field = "comment"
)

// DraftStore keeps at most one draft per task id. It never looks at tasks or
// the selection, so drafts survive reselection. Not safe for concurrent use.
type DraftStore struct {
	drafts map[int64]modal.Draft
}

func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: make(map[int64]modal.Draft)}
}

// Get returns the stored draft or the default PASS/"" draft.
func (s *DraftStore) Get(taskID int64) modal.Draft {
	if d, ok := s.drafts[taskID]; ok {
		return d
	}
	return modal.DefaultDraft()
}

func (s *DraftStore) Has(taskID int64) bool {
	_, ok := s.drafts[taskID]
	return ok
}

func (s *DraftStore) Len() int {
	return len(s.drafts)
}

// SetField overwrites exactly one field, creating the draft with defaults
// first when absent. On error the store is unchanged.
func (s *DraftStore) SetField(taskID int64, field Field, value string) error {
	d := s.Get(taskID)

	switch field {
	case FieldResult:
		r, err := modal.ParseDecisionResult(value)
		if err != nil {
			return err
		}
		d.Result = r
	case FieldComment:
		d.Comment = value
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}

	s.drafts[taskID] = d
	return nil
}

func (s *DraftStore) Clear(taskID int64) {
	delete(s.drafts, taskID)
}
