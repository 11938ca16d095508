package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is an immutable ledger record linking a paid invoice to a
// monetary transfer. Append-only: the sum of paid invoice amounts for a
// project is the sole source of truth for "amount paid".
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	InvoiceNumber string    `json:"invoice_number"`
	PayerID       uuid.UUID `json:"payer_id"`
	PayeeID       uuid.UUID `json:"payee_id"`
	Amount        int64     `json:"amount_cents"`
	Fees          int64     `json:"fees_cents"`
	CreatedAt     time.Time `json:"created_at"`
}
