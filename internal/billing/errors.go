package billing

import "errors"

// Financial-state errors are surfaced to the caller immediately and never
// silently swallowed. Downstream delivery failures are logged and isolated.
var (
	// ErrInvalidProjectConfig: bad budget, task count, or invoicing method.
	// Not retryable; the caller must fix the input.
	ErrInvalidProjectConfig = errors.New("invalid project configuration")

	// ErrInvalidStateTransition: send/pay on an invoice that is not in the
	// required state. Not retryable.
	ErrInvalidStateTransition = errors.New("invalid invoice state transition")

	// ErrBudgetExceeded: a manual invoice would overrun the non-upfront
	// budget cap. Not retryable without re-planning.
	ErrBudgetExceeded = errors.New("manual invoicing budget exceeded")

	// ErrConcurrencyConflict: an optimistic write lost a race. Retryable
	// after re-reading current state; never retried automatically here.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	// ErrLedgerUnavailable: the ledger collaborator failed. Retryable with backoff.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrNotificationUnavailable: the notification store failed. Retryable;
	// payment paths log this and continue.
	ErrNotificationUnavailable = errors.New("notification store unavailable")

	// ErrNotFound: project, task, or invoice does not exist.
	ErrNotFound = errors.New("not found")
)
