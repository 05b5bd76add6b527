package deviceauth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/identity"
)

// mockSubject/mockEmail are the fixed identity bound to every device code
// this mocked flow issues. A real device flow binds the subject only once
// a human approves the user_code; nothing here backs that approval step.
const (
	mockSubject = "device-flow-user"
	mockEmail   = "device-flow-user@example.com"
)

// Handler serves the mocked device authorization grant.
type Handler struct {
	store  *Store
	issuer *identity.TokenIssuer
}

// NewHandler creates a Handler.
func NewHandler(store *Store, issuer *identity.TokenIssuer) *Handler {
	return &Handler{store: store, issuer: issuer}
}

// Routes mounts the device flow's two endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/device-code", h.handleDeviceCode)
	r.Post("/token", h.handleToken)
	return r
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

func (h *Handler) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	issued, err := h.store.Start(mockSubject, mockEmail)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to start device authorization")
		return
	}

	httpserver.Respond(w, http.StatusOK, deviceCodeResponse{
		DeviceCode:      issued.DeviceCode,
		UserCode:        issued.UserCode,
		VerificationURI: "https://adlcgate.internal/activate",
		ExpiresIn:       issued.ExpiresIn,
		Interval:        issued.Interval,
	})
}

type tokenRequest struct {
	DeviceCode string `json:"device_code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// oauthError is the RFC 8628 polling error shape ({"error": "..."}), kept
// distinct from the rest of this API's {"detail": ...} envelope since the
// device flow is a standard OAuth grant and clients expect the standard
// field name.
type oauthError struct {
	Error string `json:"error"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceCode == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "device_code is required")
		return
	}

	subject, email, err := h.store.Poll(req.DeviceCode)
	switch err {
	case nil:
		token, ierr := h.issuer.Issue(subject, email)
		if ierr != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to issue access token")
			return
		}
		httpserver.Respond(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(h.issuer.TTL().Seconds()),
		})
	case ErrPending:
		httpserver.Respond(w, http.StatusBadRequest, oauthError{Error: "authorization_pending"})
	case ErrSlowDown:
		httpserver.Respond(w, http.StatusBadRequest, oauthError{Error: "slow_down"})
	case ErrNotFound:
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "unknown or expired device_code")
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "device token poll failed")
	}
}
