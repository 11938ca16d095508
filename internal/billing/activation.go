package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/models"
)

// AcceptanceEvent carries the fields of an accepted gig, gig request, or
// proposal that turn into a project.
type AcceptanceEvent struct {
	Source          string    `json:"source"`
	SourceID        uuid.UUID `json:"source_id"`
	CommissionerID  uuid.UUID `json:"commissioner_id"`
	FreelancerID    uuid.UUID `json:"freelancer_id"`
	Title           string    `json:"title"`
	InvoicingMethod string    `json:"invoicing_method"`
	TotalBudget     int64     `json:"total_budget_cents"`
	TotalTasks      int       `json:"total_tasks"`
}

func (e AcceptanceEvent) validate() error {
	if e.InvoicingMethod != models.InvoicingCompletion {
		return fmt.Errorf("%w: invoicing method %q is not handled by completion billing", ErrInvalidProjectConfig, e.InvoicingMethod)
	}
	if e.TotalBudget <= 0 {
		return fmt.Errorf("%w: total budget must be positive", ErrInvalidProjectConfig)
	}
	if e.TotalTasks <= 0 {
		return fmt.Errorf("%w: total task count must be positive", ErrInvalidProjectConfig)
	}
	switch e.Source {
	case models.SourceGig, models.SourceGigRequest, models.SourceProposal:
	default:
		return fmt.Errorf("%w: unknown acceptance source %q", ErrInvalidProjectConfig, e.Source)
	}
	if e.SourceID == uuid.Nil || e.CommissionerID == uuid.Nil || e.FreelancerID == uuid.Nil {
		return fmt.Errorf("%w: source, commissioner and freelancer ids are required", ErrInvalidProjectConfig)
	}
	return nil
}

// ActivationResult is returned by ActivateProject. UpfrontInvoice is nil only
// when a concurrent activation owns the payment and this request returned the
// existing project untouched.
type ActivationResult struct {
	Project        *models.Project `json:"project"`
	UpfrontInvoice *models.Invoice `json:"upfront_invoice,omitempty"`
}

// ActivateProject creates a project from an acceptance event and pays the
// upfront invoice. Idempotent per (source, source_id): a repeated request
// returns the existing project without a second project or upfront payment.
// If the payment step fails the project stays ongoing with upfront_paid=false
// and a later ActivateProject call for the same source resumes the payment,
// consulting the upfront_paid flag and the existing upfront invoice first.
func (s *Service) ActivateProject(ctx context.Context, ev AcceptanceEvent) (*ActivationResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := ev.validate(); err != nil {
		return nil, err
	}

	existing, err := s.projects.GetBySource(ctx, ev.Source, ev.SourceID)
	if err != nil {
		return nil, fmt.Errorf("lookup project by source: %w", err)
	}
	if existing != nil {
		return s.resumeActivation(ctx, existing)
	}

	project := &models.Project{
		ID:              uuid.New(),
		CommissionerID:  ev.CommissionerID,
		FreelancerID:    ev.FreelancerID,
		Source:          ev.Source,
		SourceID:        ev.SourceID,
		Title:           ev.Title,
		InvoicingMethod: ev.InvoicingMethod,
		Status:          models.ProjectStatusOngoing,
		TotalBudget:     ev.TotalBudget,
		TotalTasks:      ev.TotalTasks,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		if existing, lookupErr := s.projects.GetBySource(ctx, ev.Source, ev.SourceID); lookupErr == nil && existing != nil {
			// Lost the creation race. The winner owns the upfront payment;
			// return the project it created without paying again.
			s.log.Info("activation raced, returning existing project", "source", ev.Source, "source_id", ev.SourceID, "project_id", existing.ID)
			return &ActivationResult{Project: existing, UpfrontInvoice: s.findUpfrontInvoice(ctx, existing.ID)}, nil
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	inv, err := s.payUpfront(ctx, project)
	if err != nil {
		// Project creation is not rolled back; re-activation retries the
		// payment against the upfront_paid flag.
		s.log.Error("upfront payment failed, project left unpaid", "project_id", project.ID, "error", err)
		return nil, err
	}
	return &ActivationResult{Project: project, UpfrontInvoice: inv}, nil
}

// resumeActivation handles a repeated acceptance for a source that already has
// a project: return it as-is when the upfront payment went through, otherwise
// retry the payment.
func (s *Service) resumeActivation(ctx context.Context, project *models.Project) (*ActivationResult, error) {
	if project.UpfrontPaid {
		return &ActivationResult{Project: project, UpfrontInvoice: s.findUpfrontInvoice(ctx, project.ID)}, nil
	}
	inv, err := s.payUpfront(ctx, project)
	if err != nil {
		return nil, err
	}
	return &ActivationResult{Project: project, UpfrontInvoice: inv}, nil
}

// payUpfront creates (or resumes) the upfront invoice and drives it to paid.
// The ledger admits a single non-cancelled upfront invoice per project, so a
// concurrent payer surfaces as ErrConcurrencyConflict at create time and the
// per-step conditional transitions keep every money movement single-fire.
func (s *Service) payUpfront(ctx context.Context, project *models.Project) (*models.Invoice, error) {
	amount := s.cfg.UpfrontAmount(project.TotalBudget)

	inv := s.findUpfrontInvoice(ctx, project.ID)
	if inv == nil {
		created, err := s.ledger.CreateInvoice(ctx, &models.Invoice{
			ProjectID: project.ID,
			Type:      models.InvoiceUpfront,
			Status:    models.InvoiceDraft,
			Amount:    amount,
		})
		if err != nil {
			return nil, fmt.Errorf("create upfront invoice: %w", err)
		}
		inv = created
	}

	inv, err := s.settleInvoice(ctx, project, inv)
	if err != nil {
		return nil, err
	}

	if claimed, err := s.projects.MarkUpfrontPaid(ctx, project.ID); err != nil {
		return nil, fmt.Errorf("mark upfront paid: %w", err)
	} else if claimed {
		s.emitBoth(ctx, project, models.EventUpfrontPayment, inv.Number, nil, inv.Amount)
	}
	project.UpfrontPaid = true
	return inv, nil
}

// settleInvoice walks an invoice from wherever it stalled to paid and records
// the ledger transaction. Safe to call again after a crash: already-taken
// steps are skipped, and the sent->paid transition fires at most once.
func (s *Service) settleInvoice(ctx context.Context, project *models.Project, inv *models.Invoice) (*models.Invoice, error) {
	number := inv.Number
	var err error
	if inv.Status == models.InvoiceDraft {
		inv, err = s.ledger.Transition(ctx, number, models.InvoiceDraft, models.InvoiceSent)
		if err != nil {
			return nil, fmt.Errorf("send invoice %s: %w", number, err)
		}
	}
	if inv.Status == models.InvoiceSent {
		inv, err = s.ledger.Transition(ctx, number, models.InvoiceSent, models.InvoicePaid)
		if err != nil {
			return nil, fmt.Errorf("pay invoice %s: %w", number, err)
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
			// The paid invoice is the ground truth; a missing transaction
			// record is repairable and must not fail the payment.
			s.log.Error("record transaction failed", "invoice", inv.Number, "error", err)
		}
		if err := s.projects.AddPaidToDate(ctx, project.ID, inv.Amount); err != nil {
			// Cached drift only; reconciliation repairs it.
			s.log.Error("paid-to-date cache update failed", "project_id", project.ID, "error", err)
		}
	}
	if inv.Status != models.InvoicePaid {
		return nil, fmt.Errorf("%w: invoice %s is %s, cannot settle", ErrInvalidStateTransition, inv.Number, inv.Status)
	}
	return inv, nil
}

func (s *Service) findUpfrontInvoice(ctx context.Context, projectID uuid.UUID) *models.Invoice {
	invoices, err := s.ledger.ListByProject(ctx, projectID)
	if err != nil {
		s.log.Error("list invoices failed", "project_id", projectID, "error", err)
		return nil
	}
	for _, inv := range invoices {
		if inv.Type == models.InvoiceUpfront && inv.Status != models.InvoiceCancelled {
			return inv
		}
	}
	return nil
}
