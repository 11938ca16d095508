package models

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the invoice state machine. Transitions are monotonic:
// draft -> sent -> paid, with sent -> on_hold (-> sent) and draft/sent -> cancelled.
// A paid invoice is immutable.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOnHold    InvoiceStatus = "on_hold"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceType distinguishes the three completion-mode invoice kinds.
type InvoiceType string

const (
	InvoiceUpfront InvoiceType = "upfront"
	InvoiceManual  InvoiceType = "manual"
	InvoiceFinal   InvoiceType = "final"
)

type Invoice struct {
	Number    string        `json:"invoice_number"`
	ProjectID uuid.UUID     `json:"project_id"`
	TaskID    *uuid.UUID    `json:"task_id,omitempty"` // manual invoices only
	Type      InvoiceType   `json:"type"`
	Status    InvoiceStatus `json:"status"`
	Amount    int64         `json:"amount_cents"`
	CreatedAt time.Time     `json:"created_at"`
	SentAt    *time.Time    `json:"sent_at,omitempty"`
	PaidAt    *time.Time    `json:"paid_at,omitempty"`
}

// CountsTowardCap reports whether the invoice consumes the manual-invoicing
// budget cap. Cancelled invoices release their share.
func (i *Invoice) CountsTowardCap() bool {
	return i.Type == InvoiceManual && i.Status != InvoiceCancelled
}
