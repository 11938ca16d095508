package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gigfolio/backend/internal/models"
)

// AllowedSources is the set of acceptance sources a project can be created
// from. ActivationCheck rejects unknown sources early.
var AllowedSources = map[string]bool{
	models.SourceGig:        true,
	models.SourceGigRequest: true,
	models.SourceProposal:   true,
}

// activationPeek is the slice of the activation body the middleware inspects.
type activationPeek struct {
	Source          string `json:"source"`
	InvoicingMethod string `json:"invoicing_method"`
	TotalBudget     int64  `json:"total_budget_cents"`
	TotalTasks      int    `json:"total_tasks"`
}

// ActivationCheck rejects obviously invalid activation requests before they
// reach the orchestrator. Reads the body to inspect budget, task count and
// method, then replaces r.Body so the handler can re-read it.
func ActivationCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek activationPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.TotalBudget <= 0 {
				http.Error(w, `{"error":"total_budget_cents must be > 0"}`, http.StatusBadRequest)
				return
			}
			if peek.TotalTasks <= 0 {
				http.Error(w, `{"error":"total_tasks must be > 0"}`, http.StatusBadRequest)
				return
			}
			if peek.Source != "" && !AllowedSources[peek.Source] {
				http.Error(w, fmt.Sprintf(`{"error":"source %q is not allowed"}`, peek.Source), http.StatusBadRequest)
				return
			}
			if peek.InvoicingMethod != "" && peek.InvoicingMethod != models.InvoicingCompletion {
				http.Error(w, fmt.Sprintf(`{"error":"invoicing method %q is not handled here"}`, peek.InvoicingMethod), http.StatusUnprocessableEntity)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
