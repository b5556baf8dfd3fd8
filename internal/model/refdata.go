package model

import "github.com/shopspring/decimal"

// PurchaseOrder is immutable reference data fetched per reconciliation run.
type PurchaseOrder struct {
	ID          string          `json:"id"`
	PONumber    string          `json:"po_number"`
	VendorID    string          `json:"vendor_id,omitempty"`
	VendorName  string          `json:"vendor_name"`
	Currency    string          `json:"currency"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LineItems   []LineItem      `json:"line_items,omitempty"`
}

// GoodsReceipt records what was physically received against a PO.
type GoodsReceipt struct {
	ID    string             `json:"id"`
	Items []GoodsReceiptItem `json:"items,omitempty"`
}

// GoodsReceiptItem is one received line; Line correlates with the PO line number.
type GoodsReceiptItem struct {
	Line     int             `json:"line"`
	Quantity decimal.Decimal `json:"quantity"`
	Accepted decimal.Decimal `json:"accepted"`
	Rejected decimal.Decimal `json:"rejected"`
}

// AcceptedForLine returns the accepted quantity for a PO line, if recorded.
func (gr *GoodsReceipt) AcceptedForLine(line int) (decimal.Decimal, bool) {
	for _, it := range gr.Items {
		if it.Line == line {
			return it.Accepted, true
		}
	}
	return decimal.Decimal{}, false
}

// Annexure is an optional secondary approval document carrying a spending
// ceiling tied to a PO. Absence is not an error.
type Annexure struct {
	ID             string           `json:"id"`
	POID           string           `json:"po_id"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
}
