package main

import (
	"log/slog"
	"net/http"

	"github.com/gigfolio/backend/internal/auth"
	"github.com/gigfolio/backend/internal/handlers"
	"github.com/gigfolio/backend/internal/middleware"
	"github.com/gigfolio/backend/internal/models"
	"github.com/gigfolio/backend/internal/notify"
)

// RegisterV1Routes adds the /v1/ billing endpoints to the given mux.
// Middleware chain: Auth -> (role check) -> (ActivationCheck on activate) -> handler.
func RegisterV1Routes(mux *http.ServeMux, bh *handlers.BillingHandler, nh *notify.Handler, authSvc auth.Service, logger *slog.Logger) {
	authMW := middleware.Auth(authSvc)
	activationMW := middleware.ActivationCheck()
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	freelancerOrAdmin := middleware.RequireRole(models.RoleFreelancer, models.RoleAdmin)
	commissionerOrAdmin := middleware.RequireRole(models.RoleCommissioner, models.RoleAdmin)

	// Activation is called by the acceptance flows on behalf of the commissioner.
	mux.Handle("POST /v1/projects/activate", authMW(commissionerOrAdmin(activationMW(http.HandlerFunc(bh.ActivateProject)))))

	// Task approval callback from the approval workflow.
	mux.Handle("POST /v1/tasks/{id}/approved", authMW(http.HandlerFunc(bh.TaskApproved)))

	// Manual invoicing is freelancer-initiated.
	mux.Handle("POST /v1/projects/{id}/invoices", authMW(freelancerOrAdmin(http.HandlerFunc(bh.CreateManualInvoice))))
	mux.Handle("POST /v1/invoices/{number}/send", authMW(freelancerOrAdmin(http.HandlerFunc(bh.SendInvoice))))

	// Payment and hold/cancel are commissioner-side actions.
	mux.Handle("POST /v1/invoices/{number}/pay", authMW(commissionerOrAdmin(http.HandlerFunc(bh.PayInvoice))))
	mux.Handle("POST /v1/invoices/{number}/hold", authMW(commissionerOrAdmin(http.HandlerFunc(bh.HoldInvoice))))
	mux.Handle("POST /v1/invoices/{number}/release", authMW(commissionerOrAdmin(http.HandlerFunc(bh.ReleaseInvoice))))
	mux.Handle("POST /v1/invoices/{number}/cancel", authMW(http.HandlerFunc(bh.CancelInvoice)))

	// Read surface for both parties and admin tooling.
	mux.Handle("GET /v1/projects/{id}", authMW(http.HandlerFunc(bh.GetProject)))
	mux.Handle("GET /v1/projects/{id}/invoices", authMW(http.HandlerFunc(bh.ListProjectInvoices)))
	mux.Handle("GET /v1/notifications", authMW(http.HandlerFunc(nh.List)))

	// Reconciliation: per-project on demand, plus the admin sweep.
	mux.Handle("POST /v1/projects/{id}/reconcile", authMW(http.HandlerFunc(bh.ReconcileProject)))
	mux.Handle("POST /v1/reconcile", authMW(adminOnly(http.HandlerFunc(bh.ReconcileAll))))

	logger.Info("billing routes registered")
}
