package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/phuslu/log"
)

// handleJobStream pushes job status snapshots as Server-Sent Events. The
// watcher emits an immediate snapshot (or not_found), then only changes plus
// periodic heartbeats, and ends the stream on a terminal status. Disconnects
// cancel the request context, which stops the watcher.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.jobs.Watch(r.Context(), id, s.config.PollInterval, s.config.Heartbeat)

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal stream event")
			return
		}

		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
		flusher.Flush()
	}
}
