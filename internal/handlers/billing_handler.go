package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/billing"
	"github.com/gigfolio/backend/internal/models"
)

// BillingService is the subset of the billing service the handler needs.
type BillingService interface {
	ActivateProject(ctx context.Context, ev billing.AcceptanceEvent) (*billing.ActivationResult, error)
	OnTaskApproved(ctx context.Context, taskID uuid.UUID) (*billing.CompletionResult, error)
	CreateManualInvoice(ctx context.Context, projectID, taskID uuid.UUID) (*models.Invoice, error)
	SendInvoice(ctx context.Context, number string) (*models.Invoice, error)
	PayInvoice(ctx context.Context, number string) (*billing.PaymentResult, error)
	HoldInvoice(ctx context.Context, number string) (*models.Invoice, error)
	ReleaseInvoice(ctx context.Context, number string) (*models.Invoice, error)
	CancelInvoice(ctx context.Context, number string) (*models.Invoice, error)
	ReconcilePaidToDate(ctx context.Context, projectID uuid.UUID) (*billing.ReconcileResult, error)
	ReconcileAll(ctx context.Context) ([]*billing.ReconcileResult, error)
	Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ProjectInvoices(ctx context.Context, projectID uuid.UUID) ([]*models.Invoice, error)
}

// BillingHandler serves the completion-billing endpoints.
type BillingHandler struct {
	Svc    BillingService
	Logger *slog.Logger
}

// --- POST /v1/projects/activate ---

// ActivateProject turns an acceptance event into an active project with its
// upfront invoice paid. Repeating the call for the same source returns the
// existing project.
func (h *BillingHandler) ActivateProject(w http.ResponseWriter, r *http.Request) {
	var ev billing.AcceptanceEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Svc.ActivateProject(r.Context(), ev)
	if err != nil {
		h.writeBillingError(w, "activate project", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- POST /v1/tasks/{id}/approved ---

// TaskApproved runs the completion check after a task approval. A project
// that is not yet eligible returns 200 with completed=false and a reason.
func (h *BillingHandler) TaskApproved(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Svc.OnTaskApproved(r.Context(), taskID)
	if err != nil {
		h.writeBillingError(w, "completion check", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /v1/projects/{id}/invoices ---

type createManualInvoiceRequest struct {
	TaskID string `json:"task_id"`
}

func (h *BillingHandler) CreateManualInvoice(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	var req createManualInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		http.Error(w, `{"error":"invalid task_id"}`, http.StatusBadRequest)
		return
	}
	inv, err := h.Svc.CreateManualInvoice(r.Context(), projectID, taskID)
	if err != nil {
		h.writeBillingError(w, "create manual invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// --- GET /v1/projects/{id} and /v1/projects/{id}/invoices ---

func (h *BillingHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.Svc.Project(r.Context(), projectID)
	if err != nil {
		h.writeBillingError(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *BillingHandler) ListProjectInvoices(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	invoices, err := h.Svc.ProjectInvoices(r.Context(), projectID)
	if err != nil {
		h.writeBillingError(w, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// --- POST /v1/invoices/{number}/... ---

func (h *BillingHandler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, h.Svc.SendInvoice)
}

func (h *BillingHandler) HoldInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, h.Svc.HoldInvoice)
}

func (h *BillingHandler) ReleaseInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, h.Svc.ReleaseInvoice)
}

func (h *BillingHandler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, h.Svc.CancelInvoice)
}

func (h *BillingHandler) transitionInvoice(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*models.Invoice, error)) {
	number := r.PathValue("number")
	if number == "" {
		http.Error(w, `{"error":"invalid invoice number"}`, http.StatusBadRequest)
		return
	}
	inv, err := op(r.Context(), number)
	if err != nil {
		h.writeBillingError(w, "invoice transition", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *BillingHandler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if number == "" {
		http.Error(w, `{"error":"invalid invoice number"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Svc.PayInvoice(r.Context(), number)
	if err != nil {
		h.writeBillingError(w, "pay invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /v1/projects/{id}/reconcile and /v1/reconcile ---

func (h *BillingHandler) ReconcileProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Svc.ReconcilePaidToDate(r.Context(), projectID)
	if err != nil {
		h.writeBillingError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BillingHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	drifted, err := h.Svc.ReconcileAll(r.Context())
	if err != nil {
		h.writeBillingError(w, "reconcile all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drift_corrected": len(drifted), "results": drifted})
}

// --- helpers ---

// writeBillingError maps typed billing errors to HTTP statuses. Financial
// invariant violations are client errors; collaborator failures are gateway
// errors the caller may retry.
func (h *BillingHandler) writeBillingError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidProjectConfig):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, billing.ErrInvalidStateTransition),
		errors.Is(err, billing.ErrBudgetExceeded),
		errors.Is(err, billing.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, billing.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, billing.ErrLedgerUnavailable),
		errors.Is(err, billing.ErrNotificationUnavailable):
		h.Logger.Error(op, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable, retry later"})
	default:
		h.Logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
