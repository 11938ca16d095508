package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigfolio/backend/internal/billing"
	"github.com/gigfolio/backend/internal/models"
)

// Repository is the PostgreSQL ledger store: invoices plus the append-only
// transactions table. Invoice numbers come from invoice_number_seq.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ billing.LedgerStore = (*Repository)(nil)

const invoiceColumns = `invoice_number, project_id, task_id, type, status, amount_cents, created_at, sent_at, paid_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(&inv.Number, &inv.ProjectID, &inv.TaskID, &inv.Type, &inv.Status, &inv.Amount, &inv.CreatedAt, &inv.SentAt, &inv.PaidAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice issues the next invoice number and inserts an upfront or
// final invoice. The insert is guarded so at most one non-cancelled invoice
// of the type exists per project: the NOT EXISTS clause catches the common
// repeat and the partial unique index on (project_id, type) arbitrates
// concurrent inserts whose snapshots both predate the other's commit. Losing
// either guard surfaces as ErrConcurrencyConflict. Manual invoices go
// through CreateManualInvoice.
func (r *Repository) CreateInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	created, err := scanInvoice(r.pool.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, project_id, task_id, type, status, amount_cents)
		SELECT 'INV-' || nextval('invoice_number_seq'), $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM invoices WHERE project_id = $1 AND type = $3 AND status <> 'cancelled'
		)
		RETURNING `+invoiceColumns+`
	`, inv.ProjectID, inv.TaskID, inv.Type, inv.Status, inv.Amount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: a %s invoice already exists for project %s", billing.ErrConcurrencyConflict, inv.Type, inv.ProjectID)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, fmt.Errorf("%w: a %s invoice already exists for project %s", billing.ErrConcurrencyConflict, inv.Type, inv.ProjectID)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateManualInvoice drafts a manual invoice inside a transaction that locks
// the project row, so concurrent drafts for the same project serialize. The
// consumed manual total is re-read under the lock, the amount clamped to what
// remains under capCents, and the insert committed with the lock held.
func (r *Repository) CreateManualInvoice(ctx context.Context, inv *models.Invoice, capCents int64) (*models.Invoice, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, inv.ProjectID); err != nil {
		return nil, err
	}
	var used int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM invoices
		WHERE project_id = $1 AND type = 'manual' AND status <> 'cancelled'
	`, inv.ProjectID).Scan(&used); err != nil {
		return nil, err
	}
	remaining := capCents - used
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: manual invoices already cover the non-upfront budget of project %s", billing.ErrBudgetExceeded, inv.ProjectID)
	}
	amount := inv.Amount
	if amount > remaining {
		// Last slice absorbs the rounding drift so a fully invoiced project
		// reconciles to the cent.
		amount = remaining
	}
	created, err := scanInvoice(tx.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, project_id, task_id, type, status, amount_cents)
		VALUES ('INV-' || nextval('invoice_number_seq'), $1, $2, $3, $4, $5)
		RETURNING `+invoiceColumns+`
	`, inv.ProjectID, inv.TaskID, inv.Type, inv.Status, amount))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) GetInvoice(ctx context.Context, number string) (*models.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1
	`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: invoice %s", billing.ErrNotFound, number)
	}
	return inv, err
}

// Transition conditionally moves an invoice from exactly `from` to `to`. The
// WHERE status = from clause is the optimistic guard: a racing writer sees
// zero rows and gets ErrInvalidStateTransition, never a second fire.
func (r *Repository) Transition(ctx context.Context, number string, from, to models.InvoiceStatus) (*models.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `
		UPDATE invoices SET status = $3,
			sent_at = CASE WHEN $3 = 'sent' AND sent_at IS NULL THEN now() ELSE sent_at END,
			paid_at = CASE WHEN $3 = 'paid' THEN now() ELSE paid_at END
		WHERE invoice_number = $1 AND status = $2
		RETURNING `+invoiceColumns+`
	`, number, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetInvoice(ctx, number)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: invoice %s is %s, wanted %s -> %s", billing.ErrInvalidStateTransition, number, current.Status, from, to)
	}
	return inv, err
}

func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// SumPaidInvoices returns the ground-truth paid total for a project.
func (r *Repository) SumPaidInvoices(ctx context.Context, projectID uuid.UUID) (*billing.PaidSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE project_id = $1 AND status = 'paid' ORDER BY paid_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summary := &billing.PaidSummary{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		summary.Invoices = append(summary.Invoices, inv)
		summary.Total += inv.Amount
		summary.Count++
	}
	return summary, rows.Err()
}

// RecordTransaction appends to the transactions table. Records are never
// updated or deleted.
func (r *Repository) RecordTransaction(ctx context.Context, t *models.Transaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO ledger_transactions (id, project_id, invoice_number, payer_id, payee_id, amount_cents, fees_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.ProjectID, t.InvoiceNumber, t.PayerID, t.PayeeID, t.Amount, t.Fees).Scan(&t.CreatedAt)
}

// ListTransactions returns a project's transactions, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, projectID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, invoice_number, payer_id, payee_id, amount_cents, fees_cents, created_at
		FROM ledger_transactions WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.InvoiceNumber, &t.PayerID, &t.PayeeID, &t.Amount, &t.Fees, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
