package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigfolio/backend/internal/billing"
	"github.com/gigfolio/backend/internal/models"
)

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

var _ billing.ProjectStore = (*ProjectRepo)(nil)

const projectColumns = `id, commissioner_id, freelancer_id, source, source_id, title, invoicing_method, status, total_budget_cents, total_tasks, upfront_paid, paid_to_date_cents, last_reconciled, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.CommissionerID, &p.FreelancerID, &p.Source, &p.SourceID, &p.Title, &p.InvoicingMethod, &p.Status, &p.TotalBudget, &p.TotalTasks, &p.UpfrontPaid, &p.PaidToDate, &p.LastReconciled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts the project. The unique index on (source, source_id) is the
// activation idempotency guard; a duplicate surfaces as ErrConcurrencyConflict
// so the orchestrator can re-read and return the winner's project.
func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (id, commissioner_id, freelancer_id, source, source_id, title, invoicing_method, status, total_budget_cents, total_tasks, upfront_paid, paid_to_date_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, p.ID, p.CommissionerID, p.FreelancerID, p.Source, p.SourceID, p.Title, p.InvoicingMethod, p.Status, p.TotalBudget, p.TotalTasks, p.UpfrontPaid, p.PaidToDate).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return billing.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	return p, err
}

// GetBySource returns (nil, nil) when no project exists for the source pair.
func (r *ProjectRepo) GetBySource(ctx context.Context, source string, sourceID uuid.UUID) (*models.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE source = $1 AND source_id = $2
	`, source, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// MarkUpfrontPaid flips upfront_paid exactly once. RowsAffected tells the
// caller whether it won the flip.
func (r *ProjectRepo) MarkUpfrontPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET upfront_paid = TRUE, updated_at = now()
		WHERE id = $1 AND upfront_paid = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted moves status ongoing -> completed exactly once.
func (r *ProjectRepo) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'ongoing'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ProjectRepo) AddPaidToDate(ctx context.Context, id uuid.UUID, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projects SET paid_to_date_cents = paid_to_date_cents + $2, updated_at = now()
		WHERE id = $1
	`, id, amount)
	return err
}

func (r *ProjectRepo) SetPaidToDate(ctx context.Context, id uuid.UUID, amount int64, reconciledAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projects SET paid_to_date_cents = $2, last_reconciled = $3, updated_at = now()
		WHERE id = $1
	`, id, amount, reconciledAt)
	return err
}

func (r *ProjectRepo) ListOngoingIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM projects WHERE status = 'ongoing'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
