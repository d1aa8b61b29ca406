package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/logwell/logwell/internal/stream"
)

// handleStream serves the live log feed of a project as Server-Sent Events.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}
	if !r.ensureOwnership(w, req, projectID) {
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := stream.NewSSEClient(w, flusher, r.logger)
	defer client.Close()
	if err := r.streamer.Serve(req.Context(), projectID, client); err != nil {
		r.logger.Info("sse stream closed", "project_id", projectID, "error", err)
	}
}

// handleLogsWS serves the same feed over a websocket.
func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	projectID := strings.TrimSpace(req.URL.Query().Get("project_id"))
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "project_id is required", Field: "project_id"})
		return
	}
	if !r.ensureOwnership(w, req, projectID) {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := stream.NewWSClient(conn, r.logger)
	defer client.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go client.WatchClose(cancel)

	if err := r.streamer.Serve(ctx, projectID, client); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Info("websocket stream closed", "project_id", projectID, "error", err)
	}
}
