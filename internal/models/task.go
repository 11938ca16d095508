package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status enums. The approval workflow lives outside this core; we only
// consume approval events and read statuses for completion checks.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusApproved   = "approved"
	TaskStatusRejected   = "rejected"
)

type Task struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	InvoiceNumber *string   `json:"invoice_number,omitempty"` // linked manual invoice
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
