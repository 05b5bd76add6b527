package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wisbric/adlcgate/internal/governance"
	"github.com/wisbric/adlcgate/internal/identity"
)

type fakePipeline struct {
	result *governance.ChatResult
	err    error
}

func (f *fakePipeline) Chat(ctx context.Context, principal *identity.Principal, req governance.ChatRequest) (*governance.ChatResult, error) {
	return f.result, f.err
}

func newPrincipal() *identity.Principal {
	return &identity.Principal{Subject: "u1", Projects: map[string]struct{}{"proj-1": {}}}
}

func postCompletion(h *Handler, body completionRequest, principal *identity.Principal) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", bytes.NewReader(raw))
	if principal != nil {
		req = req.WithContext(identity.NewContext(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestChatCompletionSuccess(t *testing.T) {
	h := NewHandler(&fakePipeline{result: &governance.ChatResult{Content: "hello", CostMicros: 100, LatencyMs: 5}})

	rec := postCompletion(h, completionRequest{
		ProjectID: "proj-1",
		Model:     "gpt-test",
		Messages:  []message{{Role: "user", Content: "hi"}},
	}, newPrincipal())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatCompletionRequiresPrincipal(t *testing.T) {
	h := NewHandler(&fakePipeline{})

	rec := postCompletion(h, completionRequest{ProjectID: "proj-1", Model: "m", Messages: []message{{Role: "user", Content: "hi"}}}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestChatCompletionBudgetExceededMapsTo402(t *testing.T) {
	h := NewHandler(&fakePipeline{err: &governance.Error{Category: governance.CategoryBudgetExceeded, Detail: "daily budget exceeded"}})

	rec := postCompletion(h, completionRequest{ProjectID: "proj-1", Model: "m", Messages: []message{{Role: "user", Content: "hi"}}}, newPrincipal())

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

func TestChatCompletionForbiddenMapsTo403(t *testing.T) {
	h := NewHandler(&fakePipeline{err: &governance.Error{Category: governance.CategoryForbidden, Detail: "not a project member"}})

	rec := postCompletion(h, completionRequest{ProjectID: "proj-1", Model: "m", Messages: []message{{Role: "user", Content: "hi"}}}, newPrincipal())

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestChatCompletionUnavailableMapsTo503(t *testing.T) {
	h := NewHandler(&fakePipeline{err: &governance.Error{Category: governance.CategoryUnavailable, Detail: "model provider unavailable"}})

	rec := postCompletion(h, completionRequest{ProjectID: "proj-1", Model: "m", Messages: []message{{Role: "user", Content: "hi"}}}, newPrincipal())

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestChatCompletionRejectsEmptyMessages(t *testing.T) {
	h := NewHandler(&fakePipeline{})

	rec := postCompletion(h, completionRequest{ProjectID: "proj-1", Model: "m", Messages: nil}, newPrincipal())

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}
