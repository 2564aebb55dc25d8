package queue

import "errors"

var (
	ErrTaskNotFound       = errors.New("audit task not found")
	ErrDuplicateTask      = errors.New("duplicate audit task id")
	ErrNotSelected        = errors.New("task is not the current selection")
	ErrInvalidField       = errors.New("invalid draft field")
	ErrSubmissionInFlight = errors.New("decision submission already in flight")
	ErrSubmissionFailed   = errors.New("decision submission failed")
	ErrDetailTimeout      = errors.New("detail fetch timed out")
	ErrDetailMismatch     = errors.New("detail does not belong to the selected task")
	ErrClosed             = errors.New("audit queue is closed")
	ErrLoaderNil          = errors.New("detail loader is nil")
	ErrSinkNil            = errors.New("decision sink is nil")
)
