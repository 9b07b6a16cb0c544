// Package api serves the plan over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/ledger"
	"github.com/dokzlo13/dimplan/internal/metrics"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// Editor applies plan edits so that they are persisted and announced.
type Editor interface {
	Define(id string, t daycycle.TimeOfDay, perc float64) error
	Undefine(id string, t daycycle.TimeOfDay) error
	Pin(id string, v float64) error
	Unpin(id string) error
	SetColor(id, color string) error
	Remove(id string) error
	Replace(cfg plan.Configuration) (plan.LoadReport, error)
}

// History reads the audit ledger.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
	ByChannel(channel string, limit int) ([]*ledger.Entry, error)
}

// Server exposes plan reads and edits over HTTP.
type Server struct {
	addr       string
	plan       *plan.Plan
	editor     Editor
	history    History
	metrics    *metrics.Metrics
	clock      func() time.Time
	location   *time.Location
	httpServer *http.Server
}

// Options configures optional Server collaborators.
type Options struct {
	History  History          // nil disables the history endpoints
	Metrics  *metrics.Metrics // nil disables /metrics
	Clock    func() time.Time // defaults to time.Now
	Location *time.Location   // zone of "now" when ?at= is absent, defaults to time.Local
}

// NewServer creates a new API server.
func NewServer(host string, port int, p *plan.Plan, editor Editor, opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}
	return &Server{
		addr:     fmt.Sprintf("%s:%d", host, port),
		plan:     p,
		editor:   editor,
		history:  opts.History,
		metrics:  opts.Metrics,
		clock:    clock,
		location: location,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/values", s.handleValues)
	r.Route("/plan", func(r chi.Router) {
		r.Get("/", s.handlePlanGet)
		r.Put("/", s.handlePlanPut)
	})
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", s.handleChannelsList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleChannelGet)
			r.Delete("/", s.handleChannelDelete)
			r.Get("/value", s.handleChannelValue)
			r.Put("/points/{time}", s.handlePointPut)
			r.Delete("/points/{time}", s.handlePointDelete)
			r.Put("/pin", s.handlePinPut)
			r.Delete("/pin", s.handlePinDelete)
			r.Put("/color", s.handleColorPut)
			r.Get("/history", s.handleChannelHistory)
		})
	})
	r.Get("/history", s.handleHistory)

	return r
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps plan errors onto HTTP statuses
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plan.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, plan.ErrInvalidArgument), errors.Is(err, daycycle.ErrInvalidFormat), errors.Is(err, daycycle.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("API request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
