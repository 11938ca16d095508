package models

import (
	"time"

	"github.com/google/uuid"
)

// Project status enums.
const (
	ProjectStatusOngoing   = "ongoing"
	ProjectStatusCompleted = "completed"
	ProjectStatusPaused    = "paused"
)

// Invoicing methods. The billing core only drives completion projects;
// milestone is carried on the record because the two modes share storage.
const (
	InvoicingCompletion = "completion"
	InvoicingMilestone  = "milestone"
)

// Acceptance sources. A project is created exactly once per (source, source_id).
const (
	SourceGig        = "gig"
	SourceGigRequest = "gig_request"
	SourceProposal   = "proposal"
)

type Project struct {
	ID              uuid.UUID  `json:"id"`
	CommissionerID  uuid.UUID  `json:"commissioner_id"`
	FreelancerID    uuid.UUID  `json:"freelancer_id"`
	Source          string     `json:"source"`
	SourceID        uuid.UUID  `json:"source_id"`
	Title           string     `json:"title"`
	InvoicingMethod string     `json:"invoicing_method"`
	Status          string     `json:"status"`
	TotalBudget     int64      `json:"total_budget_cents"`
	TotalTasks      int        `json:"total_tasks"`
	UpfrontPaid     bool       `json:"upfront_paid"`
	PaidToDate      int64      `json:"paid_to_date_cents"`
	LastReconciled  *time.Time `json:"last_reconciled,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
