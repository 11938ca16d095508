package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/middleware"
	"github.com/gigfolio/backend/internal/models"
)

// ---------------------------------------------------------------------------
// 1. TestListNotifications
// ---------------------------------------------------------------------------

func TestListNotifications(t *testing.T) {
	store := newMockStore()
	target := uuid.New()
	for i, key := range []string{"k1", "k2"} {
		n := &models.Notification{
			ID:       uuid.New(),
			DedupKey: key,
			Type:     models.EventInvoiceSent,
			TargetID: target,
			Message:  "msg",
		}
		if _, err := store.Save(context.Background(), n); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), &middleware.Identity{AccountID: target, Role: models.RoleFreelancer}))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Notifications []*models.Notification `json:"notifications"`
		Count         int                    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Count != 2 || len(res.Notifications) != 2 {
		t.Errorf("got %d notifications, want 2", res.Count)
	}

	// No identity in context -> 401.
	req = httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	rec = httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no identity: expected 401, got %d", rec.Code)
	}
}
