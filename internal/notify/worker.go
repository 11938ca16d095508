package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// deliveryTimeout bounds one delivery attempt; River retries the job with
// backoff when it returns an error.
const deliveryTimeout = 10 * time.Second

// DeliverNotificationArgs is the River job payload for one notification.
type DeliverNotificationArgs struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func (DeliverNotificationArgs) Kind() string { return "deliver_notification" }

// DeliverWorker flips stored notifications to delivered. Delivery is
// at-least-once: a retried job for an already-delivered notification is a
// no-op, and ordering across a project's events is not assumed.
type DeliverWorker struct {
	river.WorkerDefaults[DeliverNotificationArgs]
	store Store
	log   *slog.Logger
}

func NewDeliverWorker(store Store, log *slog.Logger) *DeliverWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverWorker{store: store, log: log}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverNotificationArgs]) error {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	n, err := w.store.GetByID(ctx, job.Args.NotificationID)
	if err != nil {
		return fmt.Errorf("load notification %s: %w", job.Args.NotificationID, err)
	}
	if n.DeliveredAt != nil {
		return nil
	}
	if err := w.store.MarkDelivered(ctx, n.ID); err != nil {
		return fmt.Errorf("mark delivered %s: %w", n.ID, err)
	}
	w.log.Info("notification delivered", "id", n.ID, "type", n.Type, "target_id", n.TargetID)
	return nil
}
