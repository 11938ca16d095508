package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigfolio/backend/internal/models"
)

// ---------------------------------------------------------------------------
// 1. TestDeliverWorker
// ---------------------------------------------------------------------------

func TestDeliverWorker(t *testing.T) {
	store := newMockStore()
	n := &models.Notification{
		ID:       uuid.New(),
		DedupKey: "completion.invoice_sent|x|y|INV-10001",
		Type:     models.EventInvoiceSent,
		TargetID: uuid.New(),
		Message:  "Invoice INV-10001 for 1466.67 was sent by Ada Quinn.",
	}
	if _, err := store.Save(context.Background(), n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	w := NewDeliverWorker(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	job := &river.Job[DeliverNotificationArgs]{Args: DeliverNotificationArgs{NotificationID: n.ID}}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	got, err := store.GetByID(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DeliveredAt == nil {
		t.Fatal("notification should be marked delivered")
	}

	// Redelivery of the same job is a no-op.
	stamp := *got.DeliveredAt
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("redelivery Work: %v", err)
	}
	got, _ = store.GetByID(context.Background(), n.ID)
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(stamp) {
		t.Error("redelivery must not move the delivered stamp")
	}
}

// ---------------------------------------------------------------------------
// 2. TestDeliverWorker_MissingNotification
// ---------------------------------------------------------------------------

func TestDeliverWorker_MissingNotification(t *testing.T) {
	w := NewDeliverWorker(newMockStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	job := &river.Job[DeliverNotificationArgs]{Args: DeliverNotificationArgs{NotificationID: uuid.New()}}
	if err := w.Work(context.Background(), job); err == nil {
		t.Error("missing notification should error so River retries the job")
	}
}
