// Package workbench serves the draft review surface: listing and creating
// drafts, acquiring the pessimistic edit lock, editing, heartbeating, and
// the submit/approve/reject review transitions. Lock semantics themselves
// live entirely in internal/lock; this package only maps HTTP verbs and
// roles onto that manager's operations.
package workbench

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/identity"
	"github.com/wisbric/adlcgate/internal/lock"
)

// Manager is the subset of *lock.Manager this handler depends on.
type Manager interface {
	Create(ctx context.Context, projectID, ownerID, title string, content json.RawMessage) (*lock.Draft, error)
	List(ctx context.Context, projectID string) ([]*lock.Draft, error)
	Get(ctx context.Context, draftID string) (*lock.Draft, error)
	Acquire(ctx context.Context, draftID, holderID string) (*lock.Grant, error)
	Heartbeat(ctx context.Context, draftID, holderID string) (*lock.Grant, error)
	Update(ctx context.Context, draftID, holderID string, content json.RawMessage) error
	Submit(ctx context.Context, draftID, holderID string) error
	Decide(ctx context.Context, draftID string, approve bool) error
}

// Handler serves the /workbench/drafts surface.
type Handler struct {
	manager Manager
}

// NewHandler creates a Handler.
func NewHandler(manager Manager) *Handler {
	return &Handler{manager: manager}
}

// Routes mounts the draft endpoints onto a chi sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.CreateDraft)
	r.Get("/{id}", h.AcquireOrView)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/lock", h.Heartbeat)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	return r
}

type draftResponse struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"auc_id"`
	OwnerID    string          `json:"owner_id"`
	Title      string          `json:"title"`
	Status     lock.Status     `json:"status"`
	Content    json.RawMessage `json:"content"`
	Version    int             `json:"version"`
	LockHolder *string         `json:"locked_by,omitempty"`
	Mode       string          `json:"mode"`
}

func toDraftResponse(d *lock.Draft, mode string) draftResponse {
	return draftResponse{
		ID:         d.ID,
		ProjectID:  d.ProjectID,
		OwnerID:    d.OwnerID,
		Title:      d.Title,
		Status:     d.Status,
		Content:    d.Content,
		Version:    d.Version,
		LockHolder: d.LockHolder,
		Mode:       mode,
	}
}

// List handles GET /workbench/drafts?auc_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}

	projectID := r.URL.Query().Get("auc_id")
	if projectID == "" || !principal.InProject(projectID) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "caller is not a member of this project")
		return
	}

	drafts, err := h.manager.List(r.Context(), projectID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list drafts")
		return
	}

	out := make([]draftResponse, len(drafts))
	for i, d := range drafts {
		out[i] = toDraftResponse(d, "")
	}
	httpserver.Respond(w, http.StatusOK, out)
}

type createRequest struct {
	ProjectID string          `json:"auc_id" validate:"required"`
	Title     string          `json:"title" validate:"required"`
	Content   json.RawMessage `json:"content"`
}

// CreateDraft handles POST /workbench/drafts.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
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

	d, err := h.manager.Create(r.Context(), req.ProjectID, principal.Subject, req.Title, req.Content)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to create draft")
		return
	}
	httpserver.Respond(w, http.StatusCreated, toDraftResponse(d, ""))
}

// AcquireOrView handles GET /workbench/drafts/{id}. A developer attempts to
// acquire the edit lock; a manager whose acquisition loses to an active
// holder falls back to a read-only SAFE_VIEW rather than failing, per the
// manager non-interference guarantee: a manager reading a locked draft must
// never disturb its lock.
func (h *Handler) AcquireOrView(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}
	draftID := chi.URLParam(r, "id")

	grant, err := h.manager.Acquire(r.Context(), draftID, principal.Subject)
	switch {
	case err == nil:
		httpserver.Respond(w, http.StatusOK, toDraftResponse(grant.Draft, "EDIT"))
		return
	case errors.Is(err, lock.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "draft not found")
		return
	case errors.Is(err, lock.ErrLocked):
		if !principal.Role.AtLeast(identity.RoleManager) {
			httpserver.RespondError(w, http.StatusLocked, "locked", "draft is locked by another holder")
			return
		}
		d, gerr := h.manager.Get(r.Context(), draftID)
		if gerr != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to read draft")
			return
		}
		httpserver.Respond(w, http.StatusOK, toDraftResponse(d, "SAFE_VIEW"))
		return
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to acquire draft lock")
	}
}

type updateRequest struct {
	Content json.RawMessage `json:"content" validate:"required"`
}

// Update handles PUT /workbench/drafts/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}
	draftID := chi.URLParam(r, "id")

	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.manager.Update(r.Context(), draftID, principal.Subject, req.Content)
	writeLockMutationResult(w, err, nil)
}

// Heartbeat handles POST /workbench/drafts/{id}/lock.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}
	draftID := chi.URLParam(r, "id")

	grant, err := h.manager.Heartbeat(r.Context(), draftID, principal.Subject)
	if err != nil {
		writeLockMutationResult(w, err, nil)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"draft_id": grant.DraftID, "expires_at": grant.ExpiresAt})
}

// Submit handles POST /workbench/drafts/{id}/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}
	draftID := chi.URLParam(r, "id")

	err := h.manager.Submit(r.Context(), draftID, principal.Subject)
	writeLockMutationResult(w, err, nil)
}

// Approve handles POST /workbench/drafts/{id}/approve. Only a manager may
// decide a draft; the holder of the edit lock is irrelevant here since
// Submit already released it.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject handles POST /workbench/drafts/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}
	if !principal.Role.AtLeast(identity.RoleManager) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "caller must be a manager to decide a draft")
		return
	}
	draftID := chi.URLParam(r, "id")

	err := h.manager.Decide(r.Context(), draftID, approve)
	writeLockMutationResult(w, err, nil)
}

// writeLockMutationResult translates a lock package error into the HTTP
// surface's documented status codes. okBody, if non-nil, is the body
// written on success; otherwise an empty 200 is written.
func writeLockMutationResult(w http.ResponseWriter, err error, okBody any) {
	switch {
	case err == nil:
		httpserver.Respond(w, http.StatusOK, okBody)
	case errors.Is(err, lock.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "draft not found")
	case errors.Is(err, lock.ErrNotHolder):
		httpserver.RespondError(w, http.StatusLocked, "locked", "caller does not hold the draft lock")
	case errors.Is(err, lock.ErrLocked):
		httpserver.RespondError(w, http.StatusLocked, "locked", "draft is locked by another holder")
	case errors.Is(err, lock.ErrConflict):
		httpserver.RespondError(w, http.StatusConflict, "conflict", "draft is not pending review")
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "draft operation failed")
	}
}
