package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"repair-fund-audit/internal/assistant"
	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/queue"
)

type selectReq struct {
	TaskID int64 `json:"taskId"`
}

type draftPatch struct {
	Result  *string `json:"result"`
	Comment *string `json:"comment"`
}

type decisionReq struct {
	Decider string `json:"decider"`
}

type decisionResp struct {
	Decision  modal.TaskDecision `json:"decision"`
	Selection queue.Selection    `json:"selection"`
}

type assistantReq struct {
	Question string              `json:"question"`
	History  []modal.ChatMessage `json:"history"`
}

type assistantResp struct {
	Reply string `json:"reply"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.q.Tasks())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.q.Task(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.q.Selection())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID <= 0 {
		s.writeError(w, fmt.Errorf(`%w: {"taskId":N}`, errBadBody))
		return
	}
	if err := s.q.Select(req.TaskID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.q.Selection())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.q.Reload(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.q.Selection())
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.q.Task(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.q.Draft(id))
}

// handlePatchDraft validates the result before touching anything, so a bad
// result never leaves a half-applied patch behind.
func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var p draftPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || (p.Result == nil && p.Comment == nil) {
		s.writeError(w, fmt.Errorf(`%w: {"result"?:"PASS|REJECT|RETURN","comment"?:"..."}`, errBadBody))
		return
	}
	if p.Result != nil {
		if _, err := modal.ParseDecisionResult(*p.Result); err != nil {
			s.writeError(w, err)
			return
		}
	}

	d, err := s.applyDraft(id, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) applyDraft(id int64, p draftPatch) (modal.Draft, error) {
	d := s.q.Draft(id)
	var err error
	if p.Result != nil {
		if d, err = s.q.SetDraftField(id, queue.FieldResult, *p.Result); err != nil {
			return modal.Draft{}, err
		}
	}
	if p.Comment != nil {
		if d, err = s.q.SetDraftField(id, queue.FieldComment, *p.Comment); err != nil {
			return modal.Draft{}, err
		}
	}
	return d, nil
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req decisionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, fmt.Errorf(`%w: {"decider"?:"..."}`, errBadBody))
		return
	}
	if req.Decider == "" {
		req.Decider = defaultDecider
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	dec, err := s.q.Submit(ctx, id, req.Decider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResp{Decision: dec, Selection: s.q.Selection()})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		s.writeError(w, ErrAssistantDisabled)
		return
	}
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req assistantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf(`%w: {"question":"...","history"?:[...]}`, errBadBody))
		return
	}
	task, err := s.q.Task(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	detail, err := s.detailFor(ctx, id)
	if err != nil {
		s.logger.Warn("assistant without detail", "taskId", id, "error", err)
	}
	reply, err := s.ai.Ask(ctx, task, detail, req.History, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assistantResp{Reply: reply})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		s.writeError(w, ErrAssistantDisabled)
		return
	}
	id, err := taskIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.q.Task(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	detail, err := s.detailFor(ctx, id)
	if err != nil {
		s.logger.Warn("summary without detail", "taskId", id, "error", err)
	}
	summary, err := s.ai.Summarize(ctx, task, detail)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// detailFor prefers the detail already loaded for the selection.
func (s *Server) detailFor(ctx context.Context, id int64) (*modal.AuditDetail, error) {
	if sel := s.q.Selection(); sel.TaskID == id && sel.State == queue.StateReady {
		return sel.Detail, nil
	}
	if s.details == nil {
		return nil, nil
	}
	return s.details.Load(ctx, id)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrNotSelected), errors.Is(err, queue.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidField),
		errors.Is(err, modal.ErrInvalidDecision),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, errBadTaskID),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, queue.ErrClosed), errors.Is(err, ErrAssistantDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
