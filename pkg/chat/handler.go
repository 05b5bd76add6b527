// Package chat serves POST /chat/completions: the single HTTP entry point
// into the governance pipeline. It never implements policy itself — every
// decision (budget, redaction, provider availability) lives in
// internal/governance and its collaborators; this package only translates
// between HTTP and the pipeline's categorized errors.
package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/wisbric/adlcgate/internal/governance"
	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/identity"
	"github.com/wisbric/adlcgate/internal/inference"
)

// Pipeline is the subset of *governance.Pipeline this handler depends on.
type Pipeline interface {
	Chat(ctx context.Context, principal *identity.Principal, req governance.ChatRequest) (*governance.ChatResult, error)
}

// Handler serves POST /chat/completions.
type Handler struct {
	pipeline Pipeline
}

// NewHandler creates a Handler.
func NewHandler(pipeline Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

type message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type completionRequest struct {
	ProjectID       string    `json:"auc_id" validate:"required"`
	Model           string    `json:"model" validate:"required"`
	Messages        []message `json:"messages" validate:"required,min=1,dive"`
	EstimatedMicros int64     `json:"estimated_cost_hint_micros"`
}

type completionResponse struct {
	Content    string `json:"content"`
	CostMicros int64  `json:"cost_micros"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Create handles POST /chat/completions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
		return
	}

	var req completionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	messages := make([]inference.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = inference.Message{Role: m.Role, Content: m.Content}
	}

	result, err := h.pipeline.Chat(r.Context(), principal, governance.ChatRequest{
		ProjectID:               req.ProjectID,
		Model:                   req.Model,
		Messages:                messages,
		EstimatedCostHintMicros: req.EstimatedMicros,
	})
	if err != nil {
		writeGovernanceError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, completionResponse{
		Content:    result.Content,
		CostMicros: result.CostMicros,
		LatencyMs:  result.LatencyMs,
	})
}

// writeGovernanceError maps a governance.Error's category to the status
// codes the HTTP surface table promises. A non-*governance.Error is a
// programming error in a collaborator and is reported as 500.
func writeGovernanceError(w http.ResponseWriter, err error) {
	var gerr *governance.Error
	if !errors.As(err, &gerr) {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected pipeline failure")
		return
	}

	status, code := statusForCategory(gerr.Category)
	httpserver.RespondError(w, status, code, gerr.Detail)
}

func statusForCategory(cat governance.Category) (int, string) {
	switch cat {
	case governance.CategoryAuthMissing:
		return http.StatusUnauthorized, "auth_missing"
	case governance.CategoryAuthInvalid:
		return http.StatusUnauthorized, "auth_invalid"
	case governance.CategoryForbidden:
		return http.StatusForbidden, "forbidden"
	case governance.CategoryNotFound:
		return http.StatusNotFound, "not_found"
	case governance.CategoryValidationFailed:
		return http.StatusUnprocessableEntity, "validation_failed"
	case governance.CategoryBudgetExceeded:
		return http.StatusPaymentRequired, "budget_exceeded"
	case governance.CategoryLockConflict:
		return http.StatusLocked, "lock_conflict"
	case governance.CategoryConflict:
		return http.StatusConflict, "conflict"
	case governance.CategoryUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	case governance.CategoryUpstream:
		return http.StatusBadGateway, "upstream_error"
	case governance.CategoryConfigurationError:
		return http.StatusInternalServerError, "configuration_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
