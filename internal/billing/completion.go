package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/models"
)

// Non-completion reasons. These are expected outcomes, not errors.
const (
	ReasonTasksPending     = "not all tasks approved"
	ReasonUpfrontNotPaid   = "upfront not paid"
	ReasonAlreadyCompleted = "already completed"
)

// CompletionResult reports the outcome of a completion check.
type CompletionResult struct {
	Completed    bool            `json:"completed"`
	Reason       string          `json:"reason,omitempty"`
	FinalInvoice *models.Invoice `json:"final_invoice,omitempty"`
}

// OnTaskApproved runs the completion check for the task's project. When every
// task is approved, the upfront payment went through and no final invoice
// exists yet, it pays the final invoice (budget minus everything already
// paid), marks the project completed and notifies both parties. Any unmet
// precondition yields Completed=false with a reason, never an error.
// Re-invoking after completion reports "already completed".
func (s *Service) OnTaskApproved(ctx context.Context, taskID uuid.UUID) (*CompletionResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	if project.Status != models.ProjectStatusOngoing {
		return &CompletionResult{Reason: ReasonAlreadyCompleted}, nil
	}
	if !project.UpfrontPaid {
		return &CompletionResult{Reason: ReasonUpfrontNotPaid}, nil
	}

	tasks, err := s.tasks.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return &CompletionResult{Reason: ReasonTasksPending}, nil
	}
	for _, t := range tasks {
		if t.Status != models.TaskStatusApproved {
			return &CompletionResult{Reason: ReasonTasksPending}, nil
		}
	}

	invoices, err := s.ledger.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	for _, inv := range invoices {
		if inv.Type == models.InvoiceFinal && inv.Status != models.InvoiceCancelled {
			return &CompletionResult{Reason: ReasonAlreadyCompleted}, nil
		}
	}

	summary, err := s.ledger.SumPaidInvoices(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("sum paid invoices: %w", err)
	}
	amount := FinalAmount(project.TotalBudget, summary.Total)

	// The ledger admits one non-cancelled final invoice per project, so a
	// concurrent completion check fails here and aborts without paying.
	finalInv, err := s.ledger.CreateInvoice(ctx, &models.Invoice{
		ProjectID: project.ID,
		Type:      models.InvoiceFinal,
		Status:    models.InvoiceDraft,
		Amount:    amount,
	})
	if err != nil {
		return nil, fmt.Errorf("create final invoice: %w", err)
	}
	finalInv, err = s.settleInvoice(ctx, project, finalInv)
	if err != nil {
		return nil, err
	}

	if claimed, err := s.projects.MarkCompleted(ctx, project.ID); err != nil {
		return nil, fmt.Errorf("mark project completed: %w", err)
	} else if !claimed {
		return &CompletionResult{Reason: ReasonAlreadyCompleted, FinalInvoice: finalInv}, nil
	}
	project.Status = models.ProjectStatusCompleted

	s.emitBoth(ctx, project, models.EventFinalPayment, finalInv.Number, nil, finalInv.Amount)
	s.emitBoth(ctx, project, models.EventProjectCompleted, "", nil, 0)
	s.emitBoth(ctx, project, models.EventRatingPrompt, "", nil, 0)

	return &CompletionResult{Completed: true, FinalInvoice: finalInv}, nil
}
