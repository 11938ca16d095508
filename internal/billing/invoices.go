package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/models"
)

// PaymentResult pairs a freshly paid invoice with its ledger transaction.
type PaymentResult struct {
	Invoice     *models.Invoice     `json:"invoice"`
	Transaction *models.Transaction `json:"transaction"`
}

// CreateManualInvoice drafts a manual invoice for an approved task. The amount
// is the per-task estimate, capped so cumulative manual invoicing never
// exceeds the non-upfront share of the budget; with the cap already consumed
// the call fails with ErrBudgetExceeded. Calling it again for the same task
// returns the invoice already linked to it.
func (s *Service) CreateManualInvoice(ctx context.Context, projectID, taskID uuid.UUID) (*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.InvoicingMethod != models.InvoicingCompletion {
		return nil, fmt.Errorf("%w: project %s does not use completion invoicing", ErrInvalidProjectConfig, projectID)
	}
	if project.Status != models.ProjectStatusOngoing {
		return nil, fmt.Errorf("%w: project %s is %s", ErrInvalidStateTransition, projectID, project.Status)
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != projectID {
		return nil, fmt.Errorf("%w: task %s does not belong to project %s", ErrNotFound, taskID, projectID)
	}
	if task.Status != models.TaskStatusApproved {
		return nil, fmt.Errorf("%w: task %s is %s, only approved tasks can be invoiced", ErrInvalidStateTransition, taskID, task.Status)
	}
	if task.InvoiceNumber != nil {
		return s.ledger.GetInvoice(ctx, *task.InvoiceNumber)
	}

	estimate, err := s.cfg.ManualInvoiceAmount(project.TotalBudget, project.TotalTasks)
	if err != nil {
		return nil, err
	}

	// The ledger clamps the amount against the consumed cap atomically with
	// the insert, so the last slice absorbs the rounding drift and racing
	// drafts cannot overrun the non-upfront share of the budget.
	inv, err := s.ledger.CreateManualInvoice(ctx, &models.Invoice{
		ProjectID: projectID,
		TaskID:    &taskID,
		Type:      models.InvoiceManual,
		Status:    models.InvoiceDraft,
		Amount:    estimate,
	}, s.cfg.ManualCap(project.TotalBudget))
	if err != nil {
		if errors.Is(err, ErrBudgetExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("create manual invoice: %w", err)
	}
	if err := s.tasks.LinkInvoice(ctx, taskID, inv.Number); err != nil {
		return nil, fmt.Errorf("link invoice to task: %w", err)
	}
	return inv, nil
}

// SendInvoice moves a draft invoice to sent and notifies both parties. Any
// other starting status fails with ErrInvalidStateTransition.
func (s *Service) SendInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inv, err := s.ledger.Transition(ctx, number, models.InvoiceDraft, models.InvoiceSent)
	if err != nil {
		return nil, err
	}
	if project, perr := s.projects.GetByID(ctx, inv.ProjectID); perr == nil {
		s.emitBoth(ctx, project, models.EventInvoiceSent, inv.Number, inv.TaskID, inv.Amount)
	}
	return inv, nil
}

// PayInvoice moves a sent invoice to paid, appends the ledger transaction,
// bumps the cached paid-to-date and notifies both parties. Paying an invoice
// that is not sent fails with ErrInvalidStateTransition; a paid invoice can
// never be paid or sent again.
func (s *Service) PayInvoice(ctx context.Context, number string) (*PaymentResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inv, err := s.ledger.GetInvoice(ctx, number)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, inv.ProjectID)
	if err != nil {
		return nil, err
	}

	inv, err = s.ledger.Transition(ctx, number, models.InvoiceSent, models.InvoicePaid)
	if err != nil {
		return nil, err
	}
	t := &models.Transaction{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		InvoiceNumber: inv.Number,
		PayerID:       project.CommissionerID,
		PayeeID:       project.FreelancerID,
		Amount:        inv.Amount,
	}
	if err := s.ledger.RecordTransaction(ctx, t); err != nil {
		s.log.Error("record transaction failed", "invoice", inv.Number, "error", err)
	}
	if err := s.projects.AddPaidToDate(ctx, project.ID, inv.Amount); err != nil {
		s.log.Error("paid-to-date cache update failed", "project_id", project.ID, "error", err)
	}

	s.emitBoth(ctx, project, paymentEventType(inv.Type), inv.Number, inv.TaskID, inv.Amount)
	return &PaymentResult{Invoice: inv, Transaction: t}, nil
}

// HoldInvoice parks a sent invoice (sent -> on_hold).
func (s *Service) HoldInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inv, err := s.ledger.Transition(ctx, number, models.InvoiceSent, models.InvoiceOnHold)
	if err != nil {
		return nil, err
	}
	if project, perr := s.projects.GetByID(ctx, inv.ProjectID); perr == nil {
		s.emitBoth(ctx, project, models.EventInvoiceOnHold, inv.Number, inv.TaskID, inv.Amount)
	}
	return inv, nil
}

// ReleaseInvoice resumes a held invoice (on_hold -> sent).
func (s *Service) ReleaseInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inv, err := s.ledger.Transition(ctx, number, models.InvoiceOnHold, models.InvoiceSent)
	if err != nil {
		return nil, err
	}
	if project, perr := s.projects.GetByID(ctx, inv.ProjectID); perr == nil {
		s.emitBoth(ctx, project, models.EventInvoiceSent, inv.Number, inv.TaskID, inv.Amount)
	}
	return inv, nil
}

// CancelInvoice voids a draft or sent invoice. Cancelled manual invoices
// release their share of the manual budget cap. Paid invoices are immutable.
func (s *Service) CancelInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inv, err := s.ledger.GetInvoice(ctx, number)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceSent {
		return nil, fmt.Errorf("%w: cannot cancel %s invoice %s", ErrInvalidStateTransition, inv.Status, number)
	}
	inv, err = s.ledger.Transition(ctx, number, inv.Status, models.InvoiceCancelled)
	if err != nil {
		return nil, err
	}
	if project, perr := s.projects.GetByID(ctx, inv.ProjectID); perr == nil {
		s.emitBoth(ctx, project, models.EventInvoiceCancelled, inv.Number, inv.TaskID, inv.Amount)
	}
	return inv, nil
}

// ProjectInvoices lists every invoice of a project, newest first.
func (s *Service) ProjectInvoices(ctx context.Context, projectID uuid.UUID) ([]*models.Invoice, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.ledger.ListByProject(ctx, projectID)
}

// Project returns a project with its cached paid-to-date amount.
func (s *Service) Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.projects.GetByID(ctx, projectID)
}

func paymentEventType(t models.InvoiceType) models.EventType {
	switch t {
	case models.InvoiceUpfront:
		return models.EventUpfrontPayment
	case models.InvoiceFinal:
		return models.EventFinalPayment
	default:
		return models.EventInvoicePaid
	}
}
