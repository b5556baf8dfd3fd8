package notify

import (
	"context"

	"apflow/internal/model"
)

// Recipient is a routing target for status notifications.
type Recipient string

const (
	RecipientApprover Recipient = "approver"
	RecipientVendor   Recipient = "vendor"
	RecipientFinance  Recipient = "finance"
)

// RouteForStatus maps a new invoice status to the recipient who should hear
// about it: approvers for pending approvals, the vendor for final outcomes,
// the general finance list otherwise.
func RouteForStatus(status model.Status) Recipient {
	switch status {
	case model.StatusPendingApproval:
		return RecipientApprover
	case model.StatusRejected, model.StatusPaid:
		return RecipientVendor
	default:
		return RecipientFinance
	}
}

// StaleAlert names an invoice that has sat unactioned past the staleness
// threshold and the approver responsible for it.
type StaleAlert struct {
	InvoiceID     string       `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	Status        model.Status `json:"status"`
	Approver      string       `json:"approver"`
	StaleHours    float64      `json:"stale_hours"`
}

// Dispatcher delivers notifications. Delivery is best-effort: the core does
// not await confirmation and does not retry.
type Dispatcher interface {
	// Notify announces that an invoice reached a new status.
	Notify(ctx context.Context, inv *model.Invoice, newStatus model.Status)
	// Remind delivers a staleness alert to the invoice's approver.
	Remind(ctx context.Context, alert StaleAlert)
}
