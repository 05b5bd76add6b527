package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrCircuitOpen is returned by Invoke when the breaker for the requested
// model is open (or its half-open probe slot is already taken).
var ErrCircuitOpen = errors.New("circuit open for model")

// ErrModelNotAllowed is returned when model is not in the configured
// allowlist.
var ErrModelNotAllowed = errors.New("model not allowed")

// Message is a single chat turn sent to the model provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the deterministic request body sent to the provider:
// temperature is pinned to 0.0 and seed defaults to a fixed value unless the
// caller overrides it, so governed calls are reproducible.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Seed        int64     `json:"seed"`
}

// completionResponse is the subset of the provider's response this proxy
// cares about.
type completionResponse struct {
	Content      string `json:"content"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Result is what Invoke returns on success.
type Result struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

const defaultSeed = 42

// Proxy makes breaker-guarded HTTP calls to a model provider.
type Proxy struct {
	httpClient     *http.Client
	breaker        *Breaker
	allowedModels  map[string]struct{}
	providerURLFmt string // e.g. "https://api.example.com/v1/models/%s/chat"
}

// NewProxy creates a Proxy. providerURLFmt is a format string with a single
// %s for the model name.
func NewProxy(breaker *Breaker, allowedModels []string, providerURLFmt string, timeout time.Duration) *Proxy {
	allowed := make(map[string]struct{}, len(allowedModels))
	for _, m := range allowedModels {
		allowed[m] = struct{}{}
	}
	return &Proxy{
		httpClient:     &http.Client{Timeout: timeout},
		breaker:        breaker,
		allowedModels:  allowed,
		providerURLFmt: providerURLFmt,
	}
}

// Invoke places a deterministic, breaker-guarded call to model using secret
// as the bearer credential. seed, if zero, defaults to a fixed constant so
// repeated calls with no caller-supplied seed remain reproducible.
func (p *Proxy) Invoke(ctx context.Context, model string, messages []Message, seed int64, secret string) (*Result, error) {
	if len(p.allowedModels) > 0 {
		if _, ok := p.allowedModels[model]; !ok {
			return nil, ErrModelNotAllowed
		}
	}

	if !p.breaker.Allow(model) {
		return nil, ErrCircuitOpen
	}

	if seed == 0 {
		seed = defaultSeed
	}

	result, err := p.call(ctx, model, messages, seed, secret)
	if err != nil {
		if isRetryableFailure(err) {
			p.breaker.RecordFailure(model)
		} else {
			// 4xx-class request errors indicate a bad call, not an unhealthy
			// provider, and must not count against the breaker.
			p.breaker.RecordSuccess(model)
		}
		return nil, err
	}

	p.breaker.RecordSuccess(model)
	return result, nil
}

// providerError carries the HTTP status so Invoke can classify 4xx (caller
// fault, never trips the breaker) from 5xx/timeout (provider fault, trips
// the breaker).
type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

func isRetryableFailure(err error) bool {
	var perr *providerError
	if errors.As(err, &perr) {
		return perr.status >= 500
	}
	// Network errors, timeouts, context deadlines: always count against
	// the breaker.
	return true
}

func (p *Proxy) call(ctx context.Context, model string, messages []Message, seed int64, secret string) (*Result, error) {
	body, err := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.0,
		Seed:        seed,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding provider request: %w", err)
	}

	url := fmt.Sprintf(p.providerURLFmt, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &providerError{status: resp.StatusCode, body: string(respBody)}
	}

	var decoded completionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}

	return &Result{
		Content:      decoded.Content,
		InputTokens:  decoded.InputTokens,
		OutputTokens: decoded.OutputTokens,
	}, nil
}
