package governance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/adlcgate/internal/identity"
	"github.com/wisbric/adlcgate/internal/inference"
	"github.com/wisbric/adlcgate/internal/ledger"
	"github.com/wisbric/adlcgate/internal/redact"
	"github.com/wisbric/adlcgate/internal/telemetryqueue"
	"github.com/wisbric/adlcgate/internal/vault"
)

// Ledger is the subset of *ledger.Ledger the pipeline depends on.
type Ledger interface {
	Reserve(ctx context.Context, key ledger.BudgetKey, amountMicros int64) (string, error)
	Commit(ctx context.Context, key ledger.BudgetKey, reservationID string, actualAmountMicros int64) error
	Refund(ctx context.Context, key ledger.BudgetKey, reservationID string) error
}

// VaultReader is the subset of *vault.Store the pipeline depends on.
type VaultReader interface {
	Lookup(ctx context.Context, projectID, service string) (*vault.SecretMaterial, error)
}

// InferenceClient is the subset of *inference.Proxy the pipeline depends on.
type InferenceClient interface {
	Invoke(ctx context.Context, model string, messages []inference.Message, seed int64, secret string) (*inference.Result, error)
}

// Enqueuer is the subset of *telemetryqueue.Queue the pipeline depends on.
type Enqueuer interface {
	Enqueue(r telemetryqueue.Record)
}

// ChatRequest is the pipeline's single public operation's input.
type ChatRequest struct {
	ProjectID               string
	Model                   string
	Messages                []inference.Message
	EstimatedCostHintMicros int64
}

// ChatResult is returned to the HTTP edge on success. Content is the
// unscrubbed model response — the only exit path permitted to carry it.
type ChatResult struct {
	Content    string
	CostMicros int64
	LatencyMs  int64
}

// Pipeline composes the identity, ledger, vault, inference, redaction, and
// telemetry collaborators into the ordered interceptor chain described by
// the governance contract: authorize, reserve, acquire secret, invoke,
// redact, reconcile, enqueue, respond.
type Pipeline struct {
	ledger    Ledger
	vault     VaultReader
	inference InferenceClient
	scrubber  *redact.Scrubber
	queue     Enqueuer
	logger    *slog.Logger

	inputTokenRateMicros  int64
	outputTokenRateMicros int64
}

// New creates a Pipeline. inputTokenRateMicros/outputTokenRateMicros price
// a single token in micro-units and drive both the server-side cost
// estimate used at reservation time and the actual cost recorded at commit
// time.
func New(
	ledger Ledger,
	vault VaultReader,
	inference InferenceClient,
	scrubber *redact.Scrubber,
	queue Enqueuer,
	logger *slog.Logger,
	inputTokenRateMicros, outputTokenRateMicros int64,
) *Pipeline {
	return &Pipeline{
		ledger:                ledger,
		vault:                 vault,
		inference:             inference,
		scrubber:              scrubber,
		queue:                 queue,
		logger:                logger,
		inputTokenRateMicros:  inputTokenRateMicros,
		outputTokenRateMicros: outputTokenRateMicros,
	}
}

// vaultServiceFor maps a model name to the vault service key that scopes
// its provider credential. Every model is provisioned under its own
// service name, so revoking one provider's key never affects another.
func vaultServiceFor(model string) string {
	return "model:" + model
}

// estimateCostMicros is the server-side, conservative cost estimate used to
// gate the reservation. It is deliberately crude (a character-count proxy
// for token count) rather than an exact tokenizer match — the reservation
// only needs to be a safe upper bound, and the commit step reconciles
// against the true cost reported by the provider.
func estimateCostMicros(messages []inference.Message, inputRateMicros int64) int64 {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	tokens := int64(chars)/4 + 1
	return tokens * inputRateMicros
}

// Chat runs a single inference request through the full governance chain.
// Only the returned ChatResult.Content may ever reach the caller
// unscrubbed; every other exit path — telemetry, logs, errors — carries
// scrubbed or categorical data only.
func (p *Pipeline) Chat(ctx context.Context, principal *identity.Principal, req ChatRequest) (*ChatResult, error) {
	start := time.Now()

	if principal == nil {
		return nil, newError(CategoryAuthMissing, "no authenticated principal", nil)
	}
	if !principal.InProject(req.ProjectID) {
		return nil, newError(CategoryForbidden, "caller is not a member of this project", nil)
	}

	serverEstimate := estimateCostMicros(req.Messages, p.inputTokenRateMicros)
	if req.EstimatedCostHintMicros > serverEstimate {
		// The client hint may only raise the reservation, never lower it —
		// the server-side estimate is the authoritative floor.
		serverEstimate = req.EstimatedCostHintMicros
	}

	key := ledger.DayKey(principal.Subject, time.Now())
	reservationID, err := p.ledger.Reserve(ctx, key, serverEstimate)
	if err != nil {
		if errors.Is(err, ledger.ErrBudgetExceeded) {
			return nil, newError(CategoryBudgetExceeded, "daily budget exceeded", err)
		}
		return nil, newError(CategoryInternal, "reserving budget", err)
	}

	finalized := false
	defer func() {
		if finalized {
			return
		}
		if r := recover(); r != nil {
			p.refund(key, reservationID)
			panic(r)
		}
	}()

	secret, err := p.vault.Lookup(ctx, req.ProjectID, vaultServiceFor(req.Model))
	if err != nil {
		finalized = true
		p.refund(key, reservationID)
		return nil, newError(CategoryConfigurationError, "resolving provider credential", err)
	}

	infResult, err := p.inference.Invoke(ctx, req.Model, req.Messages, 0, secret.Raw)
	secret = nil // never held past the call that needed it
	if err != nil {
		finalized = true
		p.refund(key, reservationID)
		if errors.Is(err, inference.ErrCircuitOpen) {
			return nil, newError(CategoryUnavailable, "model provider unavailable", err)
		}
		return nil, newError(CategoryUpstream, "model provider call failed", err)
	}

	scrubbedRequest, err := p.scrubMessages(req.Messages)
	if err != nil {
		finalized = true
		p.refund(key, reservationID)
		return nil, newError(CategoryValidationFailed, "request payload failed redaction", err)
	}
	scrubbedResponseAny, err := p.scrubber.Scrub(infResult.Content)
	if err != nil {
		finalized = true
		p.refund(key, reservationID)
		return nil, newError(CategoryValidationFailed, "response payload failed redaction", err)
	}
	scrubbedResponse, _ := scrubbedResponseAny.(string)

	actualCost := infResult.InputTokens*p.inputTokenRateMicros + infResult.OutputTokens*p.outputTokenRateMicros
	if err := p.ledger.Commit(ctx, key, reservationID, actualCost); err != nil && !errors.Is(err, ledger.ErrReservationNotFound) {
		p.logger.Error("committing budget reservation failed", "error", err)
	}
	finalized = true

	latency := time.Since(start)
	payload, err := buildTelemetryPayload(req.Model, scrubbedRequest, scrubbedResponse, actualCost, latency)
	if err != nil {
		// Telemetry construction failing must never fail an already-served
		// response; the record is simply dropped.
		p.logger.Error("building telemetry payload failed", "error", err)
	} else {
		p.queue.Enqueue(telemetryqueue.Record{
			RecordID:  uuid.NewString(),
			ProjectID: req.ProjectID,
			UserID:    principal.Subject,
			Kind:      "chat_completion",
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		})
	}

	return &ChatResult{
		Content:    infResult.Content,
		CostMicros: actualCost,
		LatencyMs:  latency.Milliseconds(),
	}, nil
}

func (p *Pipeline) refund(key ledger.BudgetKey, reservationID string) {
	if err := p.ledger.Refund(context.Background(), key, reservationID); err != nil && !errors.Is(err, ledger.ErrReservationNotFound) {
		p.logger.Error("refunding budget reservation failed", "error", err)
	}
}

func (p *Pipeline) scrubMessages(messages []inference.Message) ([]any, error) {
	raw := make([]any, len(messages))
	for i, m := range messages {
		raw[i] = map[string]any{"role": m.Role, "content": m.Content}
	}
	scrubbed, err := p.scrubber.Scrub(raw)
	if err != nil {
		return nil, err
	}
	out, _ := scrubbed.([]any)
	return out, nil
}

func buildTelemetryPayload(model string, request []any, response string, costMicros int64, latency time.Duration) (json.RawMessage, error) {
	return json.Marshal(struct {
		Model      string `json:"model"`
		Request    []any  `json:"request"`
		Response   string `json:"response"`
		CostMicros int64  `json:"cost_micros"`
		LatencyMs  int64  `json:"latency_ms"`
	}{
		Model:      model,
		Request:    request,
		Response:   response,
		CostMicros: costMicros,
		LatencyMs:  latency.Milliseconds(),
	})
}
