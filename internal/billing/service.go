package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/models"
)

// opTimeout bounds every externally-triggered billing operation so a stalled
// collaborator surfaces as a retryable failure instead of a hang.
const opTimeout = 10 * time.Second

// ProjectStore is the project persistence interface the billing service needs.
// Conditional writes return claimed=false when the guard column changed under
// us; callers abort rather than retry payments automatically.
type ProjectStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	// GetBySource returns (nil, nil) when no project exists for the source.
	GetBySource(ctx context.Context, source string, sourceID uuid.UUID) (*models.Project, error)
	// Create fails with ErrConcurrencyConflict when a project for the same
	// (source, source_id) already exists.
	Create(ctx context.Context, p *models.Project) error
	// MarkUpfrontPaid flips upfront_paid false->true. claimed=false means it
	// was already true.
	MarkUpfrontPaid(ctx context.Context, id uuid.UUID) (claimed bool, err error)
	// MarkCompleted moves status ongoing->completed. claimed=false means the
	// project already left ongoing.
	MarkCompleted(ctx context.Context, id uuid.UUID) (claimed bool, err error)
	AddPaidToDate(ctx context.Context, id uuid.UUID, amount int64) error
	SetPaidToDate(ctx context.Context, id uuid.UUID, amount int64, reconciledAt time.Time) error
	ListOngoingIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TaskStore reads project tasks and links manual invoices to them.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error)
	LinkInvoice(ctx context.Context, taskID uuid.UUID, invoiceNumber string) error
}

// PaidSummary is the ledger's ground-truth view of a project's paid invoices.
type PaidSummary struct {
	Total    int64
	Count    int
	Invoices []*models.Invoice
}

// LedgerStore is the append-only invoice and transaction collaborator.
type LedgerStore interface {
	// CreateInvoice issues the invoice number for an upfront or final
	// invoice. At most one non-cancelled invoice of either type may exist
	// per project; a second create fails with ErrConcurrencyConflict.
	CreateInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	// CreateManualInvoice drafts a manual invoice. The store recomputes the
	// consumed manual total atomically with the insert, clamps inv.Amount to
	// what remains under capCents and fails with ErrBudgetExceeded when
	// nothing remains, so concurrent drafts never overrun the cap.
	CreateManualInvoice(ctx context.Context, inv *models.Invoice, capCents int64) (*models.Invoice, error)
	GetInvoice(ctx context.Context, number string) (*models.Invoice, error)
	// Transition moves an invoice from exactly `from` to `to`, stamping
	// sent_at/paid_at. Any other current status fails with
	// ErrInvalidStateTransition. Paid invoices never move again.
	Transition(ctx context.Context, number string, from, to models.InvoiceStatus) (*models.Invoice, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Invoice, error)
	SumPaidInvoices(ctx context.Context, projectID uuid.UUID) (*PaidSummary, error)
	RecordTransaction(ctx context.Context, t *models.Transaction) error
}

// Notifier delivers idempotent notifications. Emit failures never propagate
// into payment paths; the service logs them and moves on.
type Notifier interface {
	Emit(ctx context.Context, ev models.Event) error
}

// Service drives the completion-invoicing lifecycle: activation with upfront
// payment, manual per-task invoices, completion detection with the closing
// final payment, and paid-to-date reconciliation.
type Service struct {
	cfg      Config
	projects ProjectStore
	tasks    TaskStore
	ledger   LedgerStore
	notifier Notifier
	log      *slog.Logger
}

func NewService(cfg Config, projects ProjectStore, tasks TaskStore, ledger LedgerStore, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.UpfrontRateBps <= 0 || cfg.UpfrontRateBps >= bpsScale {
		cfg = DefaultConfig
	}
	return &Service{cfg: cfg, projects: projects, tasks: tasks, ledger: ledger, notifier: notifier, log: log}
}

// Config returns the active invoicing configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// emit sends a notification event. Delivery problems are logged, never
// returned: a failed notification must not fail or roll back a payment.
func (s *Service) emit(ctx context.Context, ev models.Event) {
	if err := s.notifier.Emit(ctx, ev); err != nil {
		s.log.Error("notification emit failed", "type", ev.Type, "project_id", ev.ProjectID, "error", err)
	}
}

// emitBoth notifies both parties of a project about the same transition, once
// per party, actor and target mirrored.
func (s *Service) emitBoth(ctx context.Context, p *models.Project, typ models.EventType, invoiceNumber string, taskID *uuid.UUID, amount int64) {
	s.emit(ctx, models.Event{
		Type: typ, ActorID: p.FreelancerID, TargetID: p.CommissionerID,
		ProjectID: p.ID, InvoiceNumber: invoiceNumber, TaskID: taskID, Amount: amount,
	})
	s.emit(ctx, models.Event{
		Type: typ, ActorID: p.CommissionerID, TargetID: p.FreelancerID,
		ProjectID: p.ID, InvoiceNumber: invoiceNumber, TaskID: taskID, Amount: amount,
	})
}
