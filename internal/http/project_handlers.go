package httpx

import (
	"net/http"
	"time"

	"github.com/logwell/logwell/internal/domain"
)

type projectResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	APIKey        string    `json:"apiKey"`
	RetentionDays *int      `json:"retentionDays"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toProjectResponse(p domain.Project) projectResponse {
	return projectResponse{
		ID:            p.ID,
		Name:          p.Name,
		APIKey:        p.APIKey,
		RetentionDays: p.RetentionDays,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

type createProjectRequest struct {
	Name          string `json:"name"`
	RetentionDays *int   `json:"retentionDays"`
}

type retentionRequest struct {
	RetentionDays *int `json:"retentionDays"`
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	switch req.Method {
	case http.MethodGet:
		projects, err := r.project.ListOwned(req.Context(), info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		out := make([]projectResponse, 0, len(projects))
		for _, p := range projects {
			out = append(out, toProjectResponse(p))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var payload createProjectRequest
		if err := decodeJSON(http.MaxBytesReader(w, req.Body, 64<<10), &payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
			return
		}
		project, err := r.project.Create(req.Context(), info.UserID, payload.Name, payload.RetentionDays)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, toProjectResponse(*project))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, projectID string) {
	info, _ := authInfoFromContext(req.Context())
	switch req.Method {
	case http.MethodGet:
		project, err := r.project.GetOwned(req.Context(), projectID, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(*project))
	case http.MethodDelete:
		if err := r.project.Delete(req.Context(), projectID, info.UserID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		r.methodNotAllowed(w)
	}
}

// handleRegenerateKey rotates the project key. The old key stops
// authenticating before the response is written.
func (r *Router) handleRegenerateKey(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, _ := authInfoFromContext(req.Context())
	key, err := r.project.RotateKey(req.Context(), projectID, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apiKey": key})
}

func (r *Router) handleRetention(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodPut && req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	info, _ := authInfoFromContext(req.Context())
	var payload retentionRequest
	if err := decodeJSON(http.MaxBytesReader(w, req.Body, 4<<10), &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "retentionDays must be null or an integer", Field: "retentionDays"})
		return
	}
	project, err := r.project.UpdateRetention(req.Context(), projectID, info.UserID, payload.RetentionDays)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(*project))
}

// ensureOwnership writes 404 unless the caller owns projectID.
func (r *Router) ensureOwnership(w http.ResponseWriter, req *http.Request, projectID string) bool {
	info, _ := authInfoFromContext(req.Context())
	if _, err := r.project.GetOwned(req.Context(), projectID, info.UserID); err != nil {
		r.writeServiceError(w, req, err)
		return false
	}
	return true
}
