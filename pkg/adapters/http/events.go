package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/go-chi/chi/v5"
)

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	return flusher, true
}

func sendEvent(w http.ResponseWriter, f http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// SubscribeReloads handles GET /events: the name of every workflow whose
// source changes, for loaders that can be watched.
func (s *Server) SubscribeReloads(w http.ResponseWriter, r *http.Request) {
	watchable, ok := s.Engine.Loader().(ports.Watchable)
	if !ok {
		s.writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "workflow loader cannot be watched"})
		return
	}
	events, err := watchable.Watch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case name, ok := <-events:
			if !ok {
				return
			}
			if err := sendEvent(w, flusher, "reload", map[string]string{"workflow": name}); err != nil {
				return
			}
		}
	}
}

// SubscribeRun handles GET /runs/{id}/events. It streams "log" events for
// new log lines and a "status" event whenever the run moves, and ends after
// the terminal status.
func (s *Server) SubscribeRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	run, err := s.Engine.Status(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}
	s.logger.Debug("SSE: subscribed to run", "run_id", id)

	var lastLog time.Time
	var lastState domain.StateID
	var lastStatus domain.RunStatus
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		entries, err := s.Engine.Logs(ctx, id, domain.LogQuery{})
		if err != nil {
			return
		}
		for _, e := range entries {
			if !e.Time.After(lastLog) {
				continue
			}
			if sendEvent(w, flusher, "log", e) != nil {
				return
			}
			lastLog = e.Time
		}
		if run.Status != lastStatus || run.CurrentState != lastState {
			if sendEvent(w, flusher, "status", run) != nil {
				return
			}
			lastStatus, lastState = run.Status, run.CurrentState
		}
		if run.Status.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("SSE: client disconnected", "run_id", id)
			return
		case <-ticker.C:
		}
		if run, err = s.Engine.Status(ctx, id); err != nil {
			return
		}
	}
}
