// Package api exposes the audit queue over HTTP: a JSON API and a small
// server-rendered review UI.
package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/queue"
)

// AuditQueue is the queue surface the handlers drive.
type AuditQueue interface {
	Tasks() []modal.AuditTask
	Task(id int64) (modal.AuditTask, error)
	Selection() queue.Selection
	Select(id int64) error
	Reload() error
	Draft(id int64) modal.Draft
	SetDraftField(id int64, field queue.Field, value string) (modal.Draft, error)
	Submit(ctx context.Context, id int64, decider string) (modal.TaskDecision, error)
	Journal() []modal.AuditEvent
}

type Assistant interface {
	Ask(ctx context.Context, task modal.AuditTask, detail *modal.AuditDetail, history []modal.ChatMessage, question string) (string, error)
	Summarize(ctx context.Context, task modal.AuditTask, detail *modal.AuditDetail) (string, error)
}

var (
	ErrAssistantDisabled = errors.New("assistant is not configured")
	errBadTaskID         = errors.New("invalid task id")
	errBadBody           = errors.New("invalid request body")
)

const defaultDecider = "auditor"

type Server struct {
	q              AuditQueue
	details        queue.DetailLoader
	ai             Assistant
	logger         *slog.Logger
	requestTimeout time.Duration
	ui             *template.Template
}

type Option func(*Server)

// WithAssistant enables POST /tasks/{taskId}/assistant and /summary.
func WithAssistant(a Assistant) Option {
	return func(s *Server) { s.ai = a }
}

// WithDetails lets the assistant see the detail of tasks that are not
// currently selected.
func WithDetails(l queue.DetailLoader) Option {
	return func(s *Server) { s.details = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRequestTimeout bounds submissions and assistant calls. Default 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

func New(q AuditQueue, opts ...Option) *Server {
	s := &Server{
		q:              q,
		logger:         logging.Discard(),
		requestTimeout: 10 * time.Second,
		ui:             template.Must(template.New("base").Funcs(uiFuncs).Parse(uiTemplates)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router with every JSON and UI route.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Get("/tasks", s.handleListTasks)
	r.Route("/tasks/{taskId}", func(r chi.Router) {
		r.Get("/", s.handleGetTask)
		r.Get("/draft", s.handleGetDraft)
		r.Patch("/draft", s.handlePatchDraft)
		r.Post("/decision", s.handleDecision)
		r.Post("/assistant", s.handleAssistant)
		r.Post("/summary", s.handleSummary)
	})

	r.Get("/selection", s.handleGetSelection)
	r.Post("/selection", s.handleSelect)
	r.Post("/selection/reload", s.handleReload)

	r.Get("/journal", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.q.Journal())
	})

	s.registerUIRoutes(r)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"durationMs", time.Since(start).Milliseconds(),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func taskIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadTaskID
	}
	return id, nil
}
