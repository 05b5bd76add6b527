package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wisbric/adlcgate/internal/identity"
)

type fakeStore struct {
	lastRaw string
}

func (f *fakeStore) Put(ctx context.Context, projectID, service, raw string) (string, error) {
	f.lastRaw = raw
	return "secret-1", nil
}

func withPrincipal(r *http.Request, p *identity.Principal) *http.Request {
	return r.WithContext(identity.NewContext(r.Context(), p))
}

func TestCreateSecretSuccess(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	body, _ := json.Marshal(createRequest{ProjectID: "proj-1", Service: "openai", Value: "sk-raw"})
	req := httptest.NewRequest(http.MethodPost, "/vault/secrets", bytes.NewReader(body))
	req = withPrincipal(req, &identity.Principal{Subject: "u1", Projects: map[string]struct{}{"proj-1": {}}})
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("sk-raw")) {
		t.Fatalf("response must never echo raw secret material: %s", rec.Body.String())
	}
	if store.lastRaw != "sk-raw" {
		t.Fatalf("expected store to receive raw value, got %q", store.lastRaw)
	}
}

func TestCreateSecretForbiddenOutsideProject(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	body, _ := json.Marshal(createRequest{ProjectID: "proj-2", Service: "openai", Value: "sk-raw"})
	req := httptest.NewRequest(http.MethodPost, "/vault/secrets", bytes.NewReader(body))
	req = withPrincipal(req, &identity.Principal{Subject: "u1", Projects: map[string]struct{}{"proj-1": {}}})
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateSecretRequiresPrincipal(t *testing.T) {
	h := NewHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/vault/secrets", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
