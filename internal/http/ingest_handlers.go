package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/logwell/logwell/internal/service/logs"
)

type ingestRequest struct {
	Logs []logs.IngestEntry `json:"logs"`
}

type ingestResponse struct {
	Inserted int                `json:"inserted"`
	Accepted int                `json:"accepted"`
	Logs     []logs.InsertedLog `json:"logs"`
}

// handleIngest stores one batch for the key's project. The whole batch is
// rejected when any entry is invalid.
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.ProjectID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "api key required")
		return
	}

	body := http.MaxBytesReader(w, req.Body, r.opts.IngestMaxBodyBytes)
	defer body.Close()
	var payload ingestRequest
	if err := decodeJSON(body, &payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "invalid JSON body", Field: "logs"})
		return
	}

	result, err := r.logs.Ingest(req.Context(), info.ProjectID, payload.Logs)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		Inserted: result.Inserted,
		Accepted: result.Inserted,
		Logs:     result.Logs,
	})
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
