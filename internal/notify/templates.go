package notify

import (
	"fmt"

	"github.com/gigfolio/backend/internal/models"
)

// renderer builds the human-readable message for one event type.
type renderer func(ev models.Event, actorName string) string

func dollars(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// renderers covers every models.EventType; TestRendererCoverage fails when a
// new type is added without a renderer here.
var renderers = map[models.EventType]renderer{
	models.EventUpfrontPayment: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Upfront payment of %s processed for your project with %s (invoice %s).", dollars(ev.Amount), actor, ev.InvoiceNumber)
	},
	models.EventInvoiceSent: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Invoice %s for %s was sent by %s.", ev.InvoiceNumber, dollars(ev.Amount), actor)
	},
	models.EventInvoicePaid: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Invoice %s for %s was paid. Counterparty: %s.", ev.InvoiceNumber, dollars(ev.Amount), actor)
	},
	models.EventInvoiceOnHold: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Invoice %s was put on hold by %s.", ev.InvoiceNumber, actor)
	},
	models.EventInvoiceCancelled: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Invoice %s for %s was cancelled by %s.", ev.InvoiceNumber, dollars(ev.Amount), actor)
	},
	models.EventFinalPayment: func(ev models.Event, actor string) string {
		return fmt.Sprintf("Final payment of %s processed (invoice %s). The project budget is now fully settled with %s.", dollars(ev.Amount), ev.InvoiceNumber, actor)
	},
	models.EventProjectCompleted: func(ev models.Event, actor string) string {
		return fmt.Sprintf("All tasks approved. Your project with %s is complete.", actor)
	},
	models.EventRatingPrompt: func(ev models.Event, actor string) string {
		return fmt.Sprintf("How was working with %s? Leave a rating for your completed project.", actor)
	},
}

// renderMessage renders the message for an event. Unknown event types are a
// programming error and are rejected rather than delivered blank.
func renderMessage(ev models.Event, actorName string) (string, error) {
	r, ok := renderers[ev.Type]
	if !ok {
		return "", fmt.Errorf("no renderer for event type %q", ev.Type)
	}
	return r(ev, actorName), nil
}
