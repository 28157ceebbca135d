package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/model"
)

// targetState is one row of the /status response.
type targetState struct {
	Target   string `json:"target"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// statusBoard tracks per-target progress. It implements driver.Observer.
type statusBoard struct {
	mu     sync.Mutex
	order  []string
	states map[string]*targetState
}

func newStatusBoard() *statusBoard {
	return &statusBoard{states: make(map[string]*targetState)}
}

func (s *statusBoard) plan(targets []model.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.states = make(map[string]*targetState, len(targets))
	for _, t := range targets {
		label := t.Label()
		s.order = append(s.order, label)
		s.states[label] = &targetState{Target: label, State: "pending"}
	}
}

// TargetStarted implements driver.Observer.
func (s *statusBoard) TargetStarted(target model.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(target).State = "building"
}

// TargetFinished implements driver.Observer.
func (s *statusBoard) TargetFinished(result model.BuildResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(result.Target)
	st.State = string(result.Status)
	st.Reason = result.Reason
	st.Duration = result.Duration.Round(time.Millisecond).String()
}

// state must be called with mu held.
func (s *statusBoard) state(target model.Target) *targetState {
	label := target.Label()
	st, ok := s.states[label]
	if !ok {
		st = &targetState{Target: label}
		s.states[label] = st
		s.order = append(s.order, label)
	}
	return st
}

func (s *statusBoard) snapshot() []targetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]targetState, 0, len(s.order))
	for _, label := range s.order {
		out = append(out, *s.states[label])
	}
	return out
}

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler reports every target's state as JSON, in enumeration order.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.status.snapshot()); err != nil {
		a.logger.Error("Encoding status failed.", "error", err)
	}
}

func (a *App) statusMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)
	return mux
}

// startStatusServer runs the status HTTP server in the background.
func (a *App) startStatusServer(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring status server.")

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.statusMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/status", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeStatusServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		logger.Debug("Status server was not running.")
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
		return
	}
	logger.Debug("Status server shut down gracefully.")
}
