package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of financial notification events. Adding a type
// means adding a renderer in notify; TestRendererCoverage enforces the pairing.
type EventType string

const (
	EventUpfrontPayment   EventType = "completion.upfront_payment"
	EventInvoiceSent      EventType = "completion.invoice_sent"
	EventInvoicePaid      EventType = "completion.invoice_paid"
	EventInvoiceOnHold    EventType = "completion.invoice_on_hold"
	EventInvoiceCancelled EventType = "completion.invoice_cancelled"
	EventFinalPayment     EventType = "completion.final_payment"
	EventProjectCompleted EventType = "completion.project_completed"
	EventRatingPrompt     EventType = "completion.rating_prompt"
)

// AllEventTypes lists every EventType; tests use it to assert renderer coverage.
var AllEventTypes = []EventType{
	EventUpfrontPayment,
	EventInvoiceSent,
	EventInvoicePaid,
	EventInvoiceOnHold,
	EventInvoiceCancelled,
	EventFinalPayment,
	EventProjectCompleted,
	EventRatingPrompt,
}

// Event is a financial state transition to be surfaced to one party.
// Created once per transition, consumed by delivery, never mutated.
type Event struct {
	Type          EventType  `json:"type"`
	ActorID       uuid.UUID  `json:"actor_id"`
	TargetID      uuid.UUID  `json:"target_id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	TaskID        *uuid.UUID `json:"task_id,omitempty"`
	Amount        int64      `json:"amount_cents,omitempty"`
}

// DedupKey derives the idempotency key from (type, target, project, invoice
// number or task id). Re-emission after a crash-and-retry maps to the same key,
// so the store keeps at most one visible notification per logical event.
func (e Event) DedupKey() string {
	parts := []string{string(e.Type), e.TargetID.String(), e.ProjectID.String()}
	if e.InvoiceNumber != "" {
		parts = append(parts, e.InvoiceNumber)
	} else if e.TaskID != nil {
		parts = append(parts, e.TaskID.String())
	}
	return strings.Join(parts, "|")
}

// Notification is the stored, enriched form of an Event.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	DedupKey    string     `json:"dedup_key"`
	Type        EventType  `json:"type"`
	ActorID     uuid.UUID  `json:"actor_id"`
	TargetID    uuid.UUID  `json:"target_id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
