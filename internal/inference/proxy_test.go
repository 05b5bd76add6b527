package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvokeRejectsDisallowedModel(t *testing.T) {
	p := NewProxy(NewBreaker(5, 10*time.Second, time.Minute), []string{"gpt-4o"}, "http://unused/%s", time.Second)
	if _, err := p.Invoke(context.Background(), "some-other-model", nil, 0, "secret"); err != ErrModelNotAllowed {
		t.Fatalf("expected ErrModelNotAllowed, got %v", err)
	}
}

func TestInvokeSuccessSendsDeterministicParams(t *testing.T) {
	var gotTemp float64
	var gotSeed int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotTemp = req.Temperature
		gotSeed = req.Seed
		_ = json.NewEncoder(w).Encode(completionResponse{Content: "hello", InputTokens: 3, OutputTokens: 1})
	}))
	defer server.Close()

	p := NewProxy(NewBreaker(5, 10*time.Second, time.Minute), nil, server.URL+"/%s", time.Second)
	result, err := p.Invoke(context.Background(), "gpt-4o", []Message{{Role: "user", Content: "hi"}}, 0, "secret")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Content != "hello" {
		t.Errorf("got content %q", result.Content)
	}
	if gotTemp != 0.0 {
		t.Errorf("expected temperature 0.0, got %v", gotTemp)
	}
	if gotSeed != defaultSeed {
		t.Errorf("expected default seed %d, got %d", defaultSeed, gotSeed)
	}
}

func Test5xxTripsBreakerBut4xxDoesNot(t *testing.T) {
	status := http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	breaker := NewBreaker(1, 10*time.Second, time.Minute)
	p := NewProxy(breaker, nil, server.URL+"/%s", time.Second)

	if _, err := p.Invoke(context.Background(), "gpt-4o", nil, 0, "secret"); err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if breaker.State("gpt-4o") != StateClosed {
		t.Fatalf("expected 4xx to leave the breaker closed, got %s", breaker.State("gpt-4o"))
	}

	status = http.StatusInternalServerError
	if _, err := p.Invoke(context.Background(), "gpt-4o", nil, 0, "secret"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if breaker.State("gpt-4o") != StateOpen {
		t.Fatalf("expected 5xx to trip the breaker open, got %s", breaker.State("gpt-4o"))
	}
}
