// Package api exposes the operator HTTP surface: dispatch and corridor state
// plus the few manual actions a control room needs.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apiaudit "github.com/kilianp07/resqroute/api/audit"
	"github.com/kilianp07/resqroute/api/vehicles"
	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/logger"
	"github.com/kilianp07/resqroute/core/stats"
)

// Server serves the operator API.
type Server struct {
	orch      *dispatch.Orchestrator
	corridors *corridor.Coordinator
	audit     audit.Store
	token     string
	log       logger.Logger
}

// New builds a Server. A non-empty token protects every /api route with
// "Authorization: Bearer <token>".
func New(orch *dispatch.Orchestrator, corridors *corridor.Coordinator, store audit.Store, token string, log logger.Logger) *Server {
	if store == nil {
		store = audit.Discard{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{orch: orch, corridors: corridors, audit: store, token: token, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/corridors", s.handleCorridors)
		r.Delete("/corridors/{id}", s.handleClearCorridor)
		r.Get("/signals", s.handleSignals)
		r.Get("/signals/history", s.handleHistory)
		r.Post("/signals/{id}/override", s.handleOverride)
		r.Delete("/signals/{id}/override", s.handleReset)
		r.Post("/alerts", s.handleAlert)
		r.Method(http.MethodGet, "/vehicles", vehicles.NewTrackingHandler(s.orch.Tracker()))
		r.Get("/incidents", s.handleIncidents)
		r.Post("/incidents", s.handleCreateIncident)
		r.Get("/incidents/{id}", s.handleIncident)
		r.Post("/incidents/{id}/status", s.handleTransition)
		r.Post("/incidents/{id}/rating", s.handleRate)
		r.Method(http.MethodGet, "/audit", apiaudit.NewLogHandler(s.audit))
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCorridors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.corridors.Active())
}

func (s *Server) handleSignals(w http.ResponseWriter, _ *http.Request) {
	net := s.corridors.Network()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  net.Status(time.Now()),
		"signals": net.Snapshot(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	h := s.corridors.History()
	if h == nil {
		h = []corridor.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incs, err := s.orch.Active(r.Context())
	if err != nil {
		s.log.Errorf("list incidents: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, incs)
}

func (s *Server) handleIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.orch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get incident", err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type statsResponse struct {
	Incidents []stats.Report `json:"incidents"`
	Corridors corridor.Stats `json:"corridors"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	incs, err := s.orch.All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Incidents: stats.Incidents(incs),
		Corridors: s.corridors.Stats(),
	})
}

// Serve listens on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("operator API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
