package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

// sseWriter emits Server-Sent-Event frames over an HTTP response, flushing
// after every frame so intermediaries cannot batch them.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for an event stream. Returns
// StreamUnsupportedError when the writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, &domain.StreamUnsupportedError{}
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tell nginx-style proxies not to buffer the stream.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent serializes one event as a `data: <json>` frame.
func (s *sseWriter) WriteEvent(ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
