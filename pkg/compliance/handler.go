// Package compliance serves the gateway's attestation endpoint: a
// checksum binding the response to the running build, plus the governance
// allowlists an auditor needs without reading config directly — the
// models the Inference Proxy may call and the PII entity types the
// Redaction Engine recognizes.
package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/wisbric/adlcgate/internal/httpserver"
	"github.com/wisbric/adlcgate/internal/version"
)

// Allowlists is the set of configured governance allowlists surfaced by
// the attestation endpoint.
type Allowlists struct {
	Models             []string `json:"models"`
	RedactionEntities  []string `json:"redaction_entities"`
}

type response struct {
	ChecksumSHA256 string     `json:"checksum_sha256"`
	Allowlists     Allowlists `json:"allowlists"`
}

// Handler serves GET /system/compliance.
type Handler struct {
	allowlists Allowlists
	checksum   string
}

// NewHandler creates a Handler. allowedModels and redactionEntities
// populate the attestation's allowlists.
func NewHandler(allowedModels, redactionEntities []string) *Handler {
	sum := sha256.Sum256([]byte(version.Version + "@" + version.Commit))
	return &Handler{
		allowlists: Allowlists{Models: allowedModels, RedactionEntities: redactionEntities},
		checksum:   hex.EncodeToString(sum[:]),
	}
}

// Handle serves the compliance attestation.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, response{
		ChecksumSHA256: h.checksum,
		Allowlists:     h.allowlists,
	})
}
