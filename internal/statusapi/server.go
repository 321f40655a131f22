// Package statusapi exposes live run progress over a local HTTP endpoint
// while an orchestration run executes. It replaces staring at scheduler
// logs with a JSON snapshot a dashboard or script can poll.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conveyordev/conveyor/pkg/cvlog"
	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

// Snapshot is the JSON document returned by GET /v1/status.
type Snapshot struct {
	Status  orchestrate.RunStatus       `json:"status"`
	Phase   int                         `json:"phase"`
	Batches []orchestrate.BatchSnapshot `json:"batches"`
}

// Server serves run progress for one PhaseRunner and its batches.
type Server struct {
	runner  *orchestrate.PhaseRunner
	batches []*orchestrate.SubmissionBatch
	log     *cvlog.Logger
}

// New builds a status server over a runner and the batches it drives.
func New(runner *orchestrate.PhaseRunner, batches []*orchestrate.SubmissionBatch, log *cvlog.Logger) *Server {
	if log == nil {
		log = cvlog.Discard()
	}
	return &Server{runner: runner, batches: batches, log: log}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/v1/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.snapshot())
	})
	return r
}

func (s *Server) snapshot() Snapshot {
	status, phase := s.runner.Status()
	snap := Snapshot{
		Status:  status,
		Phase:   phase,
		Batches: make([]orchestrate.BatchSnapshot, 0, len(s.batches)),
	}
	for _, b := range s.batches {
		snap.Batches = append(snap.Batches, b.Snapshot())
	}
	return snap
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully. Intended to run in a goroutine next to the phase runner.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("status endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
