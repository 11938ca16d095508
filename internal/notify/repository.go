package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigfolio/backend/internal/models"
)

// Repository is the PostgreSQL notification store. The unique index on
// dedup_key makes Save idempotent per logical event.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Save(ctx context.Context, n *models.Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, dedup_key, type, actor_id, target_id, project_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedup_key) DO NOTHING
	`, n.ID, n.DedupKey, n.Type, n.ActorID, n.TargetID, n.ProjectID, n.Message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	err := r.pool.QueryRow(ctx, `
		SELECT id, dedup_key, type, actor_id, target_id, project_id, message, created_at, delivered_at
		FROM notifications WHERE id = $1
	`, id).Scan(&n.ID, &n.DedupKey, &n.Type, &n.ActorID, &n.TargetID, &n.ProjectID, &n.Message, &n.CreatedAt, &n.DeliveredAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL
	`, id)
	return err
}

func (r *Repository) ListByTarget(ctx context.Context, targetID uuid.UUID) ([]*models.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, dedup_key, type, actor_id, target_id, project_id, message, created_at, delivered_at
		FROM notifications WHERE target_id = $1 ORDER BY created_at DESC
	`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.DedupKey, &n.Type, &n.ActorID, &n.TargetID, &n.ProjectID, &n.Message, &n.CreatedAt, &n.DeliveredAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}
