package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigfolio/backend/internal/billing"
	"github.com/gigfolio/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

var _ billing.TaskStore = (*TaskRepo)(nil)

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, project_id, title, status, invoice_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, t.ID, t.ProjectID, t.Title, t.Status, t.InvoiceNumber).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, title, status, invoice_number, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &t.InvoiceNumber, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, title, status, invoice_number, created_at, updated_at
		FROM tasks WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &t.InvoiceNumber, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// LinkInvoice ties a manual invoice to its task. The WHERE invoice_number IS
// NULL guard keeps a task on a single invoice.
func (r *TaskRepo) LinkInvoice(ctx context.Context, taskID uuid.UUID, invoiceNumber string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET invoice_number = $2, updated_at = now()
		WHERE id = $1 AND invoice_number IS NULL
	`, taskID, invoiceNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrConcurrencyConflict
	}
	return nil
}

// SetStatus records an externally driven status change (the approval workflow
// owns task state; this core only persists what it is told).
func (r *TaskRepo) SetStatus(ctx context.Context, taskID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1
	`, taskID, status)
	return err
}
