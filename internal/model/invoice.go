package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the aggregate the pipeline and the workflow operate on.
// Pure domain model: no database tags, no framework coupling. Monetary
// values use decimal.Decimal so tolerance comparisons are exact.
type Invoice struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	PONumber    string           `json:"po_number"`
	Approver    string           `json:"approver,omitempty"`
	DocumentKey string           `json:"document_key,omitempty"`
	Extracted   *ExtractedFields `json:"extracted,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
	Match       *MatchResult      `json:"match,omitempty"`
	WorkflowLog []WorkflowLogEntry `json:"workflow_log"`

	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// LastActivityAt is the timestamp staleness is measured from: the most
// recent of processedAt and receivedAt.
func (inv *Invoice) LastActivityAt() time.Time {
	if inv.ProcessedAt != nil && inv.ProcessedAt.After(inv.ReceivedAt) {
		return *inv.ProcessedAt
	}
	return inv.ReceivedAt
}

// ExtractedFields is the structured output of document extraction.
type ExtractedFields struct {
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	LineItems     []LineItem      `json:"line_items,omitempty"`
	CostCenter    string          `json:"cost_center,omitempty"`
	AccountCode   string          `json:"account_code,omitempty"`
	Confidence    float64         `json:"confidence"`
}

// LineItem is a single invoice or purchase-order line.
type LineItem struct {
	Line        int             `json:"line"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ValidationResult holds field-level validation output. Errors block
// verification; warnings never do.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// MatchResult is the outcome of a three-way reconciliation run.
// Invariant: IsMatched == (len(Discrepancies) == 0); an annexure ceiling
// breach records its own discrepancy so the invariant holds there too.
type MatchResult struct {
	IsMatched        bool     `json:"is_matched"`
	Discrepancies    []string `json:"discrepancies,omitempty"`
	POFound          bool     `json:"po_found"`
	AnnexureFound    bool     `json:"annexure_found"`
	ToleranceApplied bool     `json:"tolerance_applied"`
	MatchDetails     []string `json:"match_details,omitempty"`
}

// WorkflowLogEntry is one immutable record in an invoice's audit trail.
// Entries are append-only; the core never edits or removes them.
type WorkflowLogEntry struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Action    string    `json:"action"`
	Comments  string    `json:"comments,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
