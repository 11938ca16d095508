package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gigfolio/backend/internal/middleware"
)

// Handler serves the authenticated caller's notification feed.
type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.store.ListByTarget(r.Context(), id.AccountID)
	if err != nil {
		h.log.Error("list notifications", "account_id", id.AccountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"notifications": list, "count": len(list)})
}
