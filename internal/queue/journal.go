package queue

import "repair-fund-audit/internal/modal"

const (
	KindSelect            = "SELECT"
	KindDetailLoaded      = "DETAIL_LOADED"
	KindDetailUnavailable = "DETAIL_UNAVAILABLE"
	KindDetailFailed      = "DETAIL_FAILED"
	KindDetailStale       = "DETAIL_STALE"
	KindSetDraftField     = "SET_DRAFT_FIELD"
	KindSubmit            = "SUBMIT"
	KindSubmitFailed      = "SUBMIT_FAILED"
	KindClear             = "CLEAR"
)

// journal is a fixed-size ring of queue events.
type journal struct {
	buf   []modal.AuditEvent
	next  int
	count int
}

func newJournal(size int) *journal {
	if size <= 0 {
		size = 1
	}
	return &journal{buf: make([]modal.AuditEvent, size)}
}

func (j *journal) append(ev modal.AuditEvent) {
	j.buf[j.next] = ev
	j.next = (j.next + 1) % len(j.buf)
	if j.count < len(j.buf) {
		j.count++
	}
}

// list returns events oldest first.
func (j *journal) list() []modal.AuditEvent {
	out := make([]modal.AuditEvent, 0, j.count)
	start := (j.next - j.count + len(j.buf)) % len(j.buf)
	for i := 0; i < j.count; i++ {
		out = append(out, j.buf[(start+i)%len(j.buf)])
	}
	return out
}
