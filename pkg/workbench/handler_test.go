package workbench

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/adlcgate/internal/identity"
	"github.com/wisbric/adlcgate/internal/lock"
)

type fakeManager struct {
	drafts       map[string]*lock.Draft
	acquireErr   error
	updateErr    error
	submitErr    error
	decideErr    error
	heartbeatErr error
}

func newFakeManager() *fakeManager {
	return &fakeManager{drafts: map[string]*lock.Draft{}}
}

func (f *fakeManager) Create(ctx context.Context, projectID, ownerID, title string, content json.RawMessage) (*lock.Draft, error) {
	d := &lock.Draft{ID: "draft-1", ProjectID: projectID, OwnerID: ownerID, Title: title, Status: lock.StatusDraft, Content: content}
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeManager) List(ctx context.Context, projectID string) ([]*lock.Draft, error) {
	var out []*lock.Draft
	for _, d := range f.drafts {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeManager) Get(ctx context.Context, draftID string) (*lock.Draft, error) {
	d, ok := f.drafts[draftID]
	if !ok {
		return nil, lock.ErrNotFound
	}
	return d, nil
}

func (f *fakeManager) Acquire(ctx context.Context, draftID, holderID string) (*lock.Grant, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	d, ok := f.drafts[draftID]
	if !ok {
		return nil, lock.ErrNotFound
	}
	expiry := time.Now().Add(time.Minute)
	d.LockHolder = &holderID
	d.LockExpiresAt = &expiry
	return &lock.Grant{DraftID: draftID, HolderID: holderID, ExpiresAt: expiry, Draft: d}, nil
}

func (f *fakeManager) Heartbeat(ctx context.Context, draftID, holderID string) (*lock.Grant, error) {
	if f.heartbeatErr != nil {
		return nil, f.heartbeatErr
	}
	return &lock.Grant{DraftID: draftID, HolderID: holderID, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeManager) Update(ctx context.Context, draftID, holderID string, content json.RawMessage) error {
	return f.updateErr
}

func (f *fakeManager) Submit(ctx context.Context, draftID, holderID string) error {
	return f.submitErr
}

func (f *fakeManager) Decide(ctx context.Context, draftID string, approve bool) error {
	return f.decideErr
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withPrincipal(r *http.Request, p *identity.Principal) *http.Request {
	return r.WithContext(identity.NewContext(r.Context(), p))
}

func TestAcquireOrViewGrantsEditWhenUnlocked(t *testing.T) {
	fm := newFakeManager()
	fm.drafts["draft-1"] = &lock.Draft{ID: "draft-1", ProjectID: "proj-1"}
	h := NewHandler(fm)

	req := httptest.NewRequest(http.MethodGet, "/workbench/drafts/draft-1", nil)
	req = withChiParam(req, "id", "draft-1")
	req = withPrincipal(req, &identity.Principal{Subject: "dev-1", Role: identity.RoleDeveloper})
	rec := httptest.NewRecorder()

	h.AcquireOrView(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp draftResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "EDIT" {
		t.Fatalf("expected EDIT mode, got %q", resp.Mode)
	}
}

func TestAcquireOrViewDeveloperLockedReturns423(t *testing.T) {
	fm := newFakeManager()
	fm.acquireErr = lock.ErrLocked
	h := NewHandler(fm)

	req := httptest.NewRequest(http.MethodGet, "/workbench/drafts/draft-1", nil)
	req = withChiParam(req, "id", "draft-1")
	req = withPrincipal(req, &identity.Principal{Subject: "dev-1", Role: identity.RoleDeveloper})
	rec := httptest.NewRecorder()

	h.AcquireOrView(rec, req)

	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", rec.Code)
	}
}

func TestAcquireOrViewManagerLockedFallsBackToSafeView(t *testing.T) {
	fm := newFakeManager()
	fm.acquireErr = lock.ErrLocked
	fm.drafts["draft-1"] = &lock.Draft{ID: "draft-1", ProjectID: "proj-1"}
	h := NewHandler(fm)

	req := httptest.NewRequest(http.MethodGet, "/workbench/drafts/draft-1", nil)
	req = withChiParam(req, "id", "draft-1")
	req = withPrincipal(req, &identity.Principal{Subject: "mgr-1", Role: identity.RoleManager})
	rec := httptest.NewRecorder()

	h.AcquireOrView(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 safe-view, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp draftResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "SAFE_VIEW" {
		t.Fatalf("expected SAFE_VIEW mode, got %q", resp.Mode)
	}
}

func TestApproveRequiresManagerRole(t *testing.T) {
	fm := newFakeManager()
	h := NewHandler(fm)

	req := httptest.NewRequest(http.MethodPost, "/workbench/drafts/draft-1/approve", nil)
	req = withChiParam(req, "id", "draft-1")
	req = withPrincipal(req, &identity.Principal{Subject: "dev-1", Role: identity.RoleDeveloper})
	rec := httptest.NewRecorder()

	h.Approve(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestApproveConflictOnNonPendingDraft(t *testing.T) {
	fm := newFakeManager()
	fm.decideErr = lock.ErrConflict
	h := NewHandler(fm)

	req := httptest.NewRequest(http.MethodPost, "/workbench/drafts/draft-1/approve", nil)
	req = withChiParam(req, "id", "draft-1")
	req = withPrincipal(req, &identity.Principal{Subject: "mgr-1", Role: identity.RoleManager})
	rec := httptest.NewRecorder()

	h.Approve(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
