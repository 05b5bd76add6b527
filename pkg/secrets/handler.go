// Package secrets serves the vault write path: POST /vault/secrets
// encrypts and stores provider credentials scoped to a (project, service)
// pair. The raw value is never echoed back once written — only its
// metadata.
package secrets

import (
	"context"
	"net/http"
	"time"

	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/identity"
)

// Store is the subset of *vault.Store this handler depends on.
type Store interface {
	Put(ctx context.Context, projectID, service, raw string) (string, error)
}

// Handler serves POST /vault/secrets.
type Handler struct {
	store Store
}

// NewHandler creates a Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type createRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Service   string `json:"service_name" validate:"required"`
	Value     string `json:"value" validate:"required"`
}

type createResponse struct {
	SecretID  string    `json:"secret_id"`
	ProjectID string    `json:"auc_id"`
	Service   string    `json:"service_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Create handles POST /vault/secrets. The caller must be a member of the
// target project; raw secret material never appears in the response.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if !principal.InProject(req.ProjectID) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "caller is not a member of this project")
		return
	}

	id, err := h.store.Put(r.Context(), req.ProjectID, req.Service, req.Value)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to store secret material")
		return
	}

	httpserver.Respond(w, http.StatusCreated, createResponse{
		SecretID:  id,
		ProjectID: req.ProjectID,
		Service:   req.Service,
		CreatedAt: time.Now().UTC(),
	})
}
