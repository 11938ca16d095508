package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/billing"
	"github.com/gigfolio/backend/internal/models"
)

// Store persists notifications with dedup-key semantics.
type Store interface {
	// Save inserts the notification unless one with the same dedup key
	// already exists. inserted=false means a duplicate was suppressed.
	Save(ctx context.Context, n *models.Notification) (inserted bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	ListByTarget(ctx context.Context, targetID uuid.UUID) ([]*models.Notification, error)
}

// AccountDirectory resolves account ids to display names for enrichment.
type AccountDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// EnqueueDeliveryFunc schedules asynchronous delivery of a stored
// notification. Wired in main as a closure over river.Client.Insert.
type EnqueueDeliveryFunc func(ctx context.Context, notificationID uuid.UUID) error

// Emitter turns billing events into enriched, deduplicated notifications and
// hands them to the delivery queue. It implements billing.Notifier.
type Emitter struct {
	store    Store
	accounts AccountDirectory
	enqueue  EnqueueDeliveryFunc
	log      *slog.Logger
}

func NewEmitter(store Store, accounts AccountDirectory, enqueue EnqueueDeliveryFunc, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{store: store, accounts: accounts, enqueue: enqueue, log: log}
}

var _ billing.Notifier = (*Emitter)(nil)

// Emit stores the event once per idempotency key and schedules delivery.
// Re-emission after a crash-and-retry hits the dedup key and is dropped, so
// at most one visible notification exists per logical event. Errors are
// reported to the caller, which logs them without failing the payment.
func (e *Emitter) Emit(ctx context.Context, ev models.Event) error {
	msg, err := renderMessage(ev, e.resolveName(ctx, ev.ActorID))
	if err != nil {
		return err
	}

	n := &models.Notification{
		ID:        uuid.New(),
		DedupKey:  ev.DedupKey(),
		Type:      ev.Type,
		ActorID:   ev.ActorID,
		TargetID:  ev.TargetID,
		ProjectID: ev.ProjectID,
		Message:   msg,
	}
	inserted, err := e.store.Save(ctx, n)
	if err != nil {
		return fmt.Errorf("%w: %v", billing.ErrNotificationUnavailable, err)
	}
	if !inserted {
		// Duplicate of an already-emitted event; nothing to deliver.
		return nil
	}
	if err := e.enqueue(ctx, n.ID); err != nil {
		// The notification row exists; delivery can be retried independently.
		return fmt.Errorf("%w: enqueue delivery: %v", billing.ErrNotificationUnavailable, err)
	}
	return nil
}

// resolveName enriches the message with the actor's display name. Lookup
// failure degrades to a generic label rather than failing the emission.
func (e *Emitter) resolveName(ctx context.Context, id uuid.UUID) string {
	acc, err := e.accounts.GetByID(ctx, id)
	if err != nil || acc == nil {
		return "the other party"
	}
	if acc.Organization != "" {
		return fmt.Sprintf("%s (%s)", acc.DisplayName, acc.Organization)
	}
	return acc.DisplayName
}
