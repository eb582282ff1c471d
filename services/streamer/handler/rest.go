package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
	"github.com/ramiqadoumi/quote-stream/pkg/telemetry"
	"github.com/ramiqadoumi/quote-stream/services/streamer"
)

// REST handles HTTP requests for the streamer service.
type REST struct {
	svc     *streamer.Service
	bridge  *streamer.Bridge
	limiter redisstore.RateLimiter // nil = disabled
	logger  *slog.Logger

	// runCtx is the service-lifetime context workflows run on. It must not
	// be tied to any one request: a stream disconnect never cancels the
	// workflow it started.
	runCtx context.Context
}

// NewREST creates a new REST handler.
func NewREST(runCtx context.Context, svc *streamer.Service, bridge *streamer.Bridge, limiter redisstore.RateLimiter, logger *slog.Logger) *REST {
	return &REST{svc: svc, bridge: bridge, limiter: limiter, logger: logger, runCtx: runCtx}
}

// OpenStream handles GET /api/v1/workflows/stream.
// It starts a fresh workflow instance and streams its progress as SSE until
// the workflow terminates or the consumer disconnects.
func (h *REST) OpenStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("streamer").Start(r.Context(), "streamer.open_stream")
	defer span.End()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, clientKey(r))
		if err != nil {
			h.logger.Error("rate limiter error", slog.String("error", err.Error()))
			// Allow on limiter failure so Redis trouble doesn't block streams.
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many open streams, retry later")
			return
		}
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	run := h.svc.StartWorkflow(h.runCtx)
	span.SetAttributes(attribute.String("workflow.id", run.ID()))

	telemetry.StreamsOpened.Inc()
	telemetry.StreamsActive.Inc()
	defer telemetry.StreamsActive.Dec()

	h.logger.Info("stream opened",
		slog.String("workflow_id", run.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	err = h.bridge.Stream(ctx, run, sse.WriteEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("stream ended with error",
			slog.String("workflow_id", run.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// StopWorkflow handles POST /api/v1/workflows/{id}/stop.
func (h *REST) StopWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	if workflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	ack, err := h.svc.StopWorkflow(workflowID)
	if err != nil {
		var notFound *domain.WorkflowNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		h.logger.Error("stop request failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to signal workflow")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ack)
}

// GetWorkflow handles GET /api/v1/workflows/{id}.
func (h *REST) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	if workflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow ID is required")
		return
	}

	snap, err := h.svc.LookupSnapshot(r.Context(), workflowID)
	if err != nil {
		var notFound *domain.WorkflowNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		h.logger.Error("snapshot lookup failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to retrieve workflow")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz.
func (h *REST) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// clientKey buckets rate-limit counts by client host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
