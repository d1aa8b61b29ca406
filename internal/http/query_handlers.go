package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/logwell/logwell/internal/domain"
	"github.com/logwell/logwell/internal/service/logs"
)

type queryResponse struct {
	Logs       []domain.Log `json:"logs"`
	Total      *int64       `json:"total"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"nextCursor"`
}

func (r *Router) handleQueryLogs(w http.ResponseWriter, req *http.Request, projectID string) {
	r.serveLogQuery(w, req, projectID, logs.CursorStrict)
}

// serveLogQuery answers both log listing routes. They differ only in how an
// undecodable cursor is treated.
func (r *Router) serveLogQuery(w http.ResponseWriter, req *http.Request, projectID string, mode logs.CursorMode) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.ensureOwnership(w, req, projectID) {
		return
	}
	params, err := parseQueryParams(req.URL.Query())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	params.ProjectID = projectID
	params.CursorMode = mode

	result, err := r.logs.Query(req.Context(), params)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if result.Logs == nil {
		result.Logs = []domain.Log{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Logs:       result.Logs,
		Total:      result.Total,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	})
}

func parseQueryParams(values url.Values) (logs.QueryParams, error) {
	params := logs.QueryParams{
		Search: values.Get("search"),
		Cursor: strings.TrimSpace(values.Get("cursor")),
	}
	for _, raw := range values["level"] {
		params.Levels = append(params.Levels, strings.Split(raw, ",")...)
	}
	var err error
	if params.From, err = parseTimeParam(values, "from"); err != nil {
		return params, err
	}
	if params.To, err = parseTimeParam(values, "to"); err != nil {
		return params, err
	}
	if params.Limit, err = parseIntParam(values, "limit"); err != nil {
		return params, err
	}
	if params.Offset, err = parseIntParam(values, "offset"); err != nil {
		return params, err
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	return params, nil
}

func parseTimeParam(values url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, &logs.ValidationError{Field: name, Message: name + " must be an RFC3339 timestamp"}
	}
	ts = ts.UTC()
	return &ts, nil
}

func parseIntParam(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &logs.ValidationError{Field: name, Message: name + " must be an integer"}
	}
	return n, nil
}

func (r *Router) handleTimeSeries(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.ensureOwnership(w, req, projectID) {
		return
	}
	series, err := r.logs.TimeSeries(req.Context(), projectID, req.URL.Query().Get("range"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (r *Router) handleLevelStats(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if !r.ensureOwnership(w, req, projectID) {
		return
	}
	summary, err := r.logs.LevelCounts(req.Context(), projectID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
