package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"apflow/internal/model"
)

// DefaultTolerance is the allowed variance between invoice and PO totals,
// as a fraction of the PO total.
const DefaultTolerance = 0.05

// amountEpsilon guards decimal totals that differ only by rounding noise;
// differences at or below one cent count as equal.
var amountEpsilon = decimal.NewFromFloat(0.01)

// Engine performs the three-way match of an invoice against its purchase
// order, goods receipt and optional annexure ceiling. Match is a pure
// function of its inputs and never returns an error: every failure mode,
// including an internal panic, resolves to a MatchResult with IsMatched
// false and a discrepancy describing the cause.
type Engine struct {
	tolerance decimal.Decimal
}

// NewEngine builds an Engine with the given tolerance fraction. Values
// outside (0, 1] fall back to DefaultTolerance.
func NewEngine(tolerance float64) *Engine {
	if tolerance <= 0 || tolerance > 1 {
		tolerance = DefaultTolerance
	}
	return &Engine{tolerance: decimal.NewFromFloat(tolerance)}
}

// Failure converts an external lookup failure into an ERROR-category match
// result so the pipeline can surface it instead of hanging or panicking.
func Failure(err error) model.MatchResult {
	return model.MatchResult{
		IsMatched:     false,
		Discrepancies: []string{fmt.Sprintf("ERROR: reconciliation aborted: %v", err)},
	}
}

// Match reconciles the invoice against po, gr and annexure. Any of po, gr,
// annexure may be nil, meaning the lookup found nothing.
func (e *Engine) Match(inv *model.Invoice, po *model.PurchaseOrder, gr *model.GoodsReceipt, ax *model.Annexure) (result model.MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failure(fmt.Errorf("internal error: %v", r))
		}
	}()

	result = model.MatchResult{
		Discrepancies: []string{},
		MatchDetails:  []string{},
	}

	if inv == nil || inv.Extracted == nil {
		result.Discrepancies = append(result.Discrepancies, "ERROR: no extracted invoice data to reconcile")
		return result
	}
	if strings.TrimSpace(inv.PONumber) == "" {
		result.Discrepancies = append(result.Discrepancies, "invoice has no PO number")
		return result
	}
	if po == nil {
		result.Discrepancies = append(result.Discrepancies, fmt.Sprintf("PO %s not found", inv.PONumber))
		return result
	}
	result.POFound = true
	if gr == nil {
		// Matching requires physical receipt evidence.
		result.Discrepancies = append(result.Discrepancies, fmt.Sprintf("goods receipt for PO %s not found", inv.PONumber))
		return result
	}

	e.checkVendor(inv.Extracted, po, &result)
	e.checkAmount(inv.Extracted.TotalAmount, po.TotalAmount, &result)
	e.checkLineItems(inv.Extracted.LineItems, po, gr, &result)

	ceilingBreached := false
	if ax != nil {
		result.AnnexureFound = true
		ceilingBreached = e.checkAnnexure(inv.Extracted.TotalAmount, ax, &result)
	}

	result.IsMatched = len(result.Discrepancies) == 0 && !ceilingBreached
	return result
}

// checkVendor compares vendor names case-insensitively after trimming.
// A mismatch is recorded but does not halt the remaining checks.
func (e *Engine) checkVendor(f *model.ExtractedFields, po *model.PurchaseOrder, res *model.MatchResult) {
	invVendor := strings.TrimSpace(f.VendorName)
	poVendor := strings.TrimSpace(po.VendorName)
	if !strings.EqualFold(invVendor, poVendor) {
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("vendor mismatch: invoice %q vs PO %q", invVendor, poVendor))
	} else {
		res.MatchDetails = append(res.MatchDetails, "vendor matches PO")
	}
}

func (e *Engine) checkAmount(invAmount, poAmount decimal.Decimal, res *model.MatchResult) {
	diff := invAmount.Sub(poAmount).Abs()
	if diff.LessThanOrEqual(amountEpsilon) {
		res.MatchDetails = append(res.MatchDetails, "amount matches PO total")
		return
	}
	band := poAmount.Mul(e.tolerance)
	if diff.GreaterThan(band) {
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("amount mismatch: invoice %s vs PO %s exceeds %s%% tolerance",
				invAmount.StringFixed(2), poAmount.StringFixed(2),
				e.tolerance.Mul(decimal.NewFromInt(100)).String()))
		return
	}
	res.ToleranceApplied = true
	res.MatchDetails = append(res.MatchDetails,
		fmt.Sprintf("amount within tolerance: invoice %s vs PO %s",
			invAmount.StringFixed(2), poAmount.StringFixed(2)))
}

// checkLineItems matches each invoice line against PO lines by
// case-insensitive substring containment of descriptions, in either
// direction. Ties break to the first PO line in original order, and an
// ambiguous multi-match is itself recorded as a discrepancy rather than
// silently picking one.
func (e *Engine) checkLineItems(items []model.LineItem, po *model.PurchaseOrder, gr *model.GoodsReceipt, res *model.MatchResult) {
	if len(items) == 0 {
		return
	}
	for _, item := range items {
		candidates := matchPOLines(item.Description, po.LineItems)
		if len(candidates) == 0 {
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("line item %q has no matching PO line", item.Description))
			continue
		}
		if len(candidates) > 1 {
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("line item %q ambiguously matches %d PO lines", item.Description, len(candidates)))
		}
		poLine := candidates[0]
		if item.Quantity.GreaterThan(poLine.Quantity) {
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("line item %q quantity %s exceeds PO quantity %s",
					item.Description, item.Quantity.String(), poLine.Quantity.String()))
		}
		// Only an invoice price higher than the PO price is penalized.
		if item.UnitPrice.GreaterThan(poLine.UnitPrice) {
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("line item %q unit price %s exceeds PO price %s",
					item.Description, item.UnitPrice.StringFixed(2), poLine.UnitPrice.StringFixed(2)))
		}
		if accepted, ok := gr.AcceptedForLine(poLine.Line); ok && item.Quantity.GreaterThan(accepted) {
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("line item %q quantity %s exceeds accepted receipt quantity %s",
					item.Description, item.Quantity.String(), accepted.String()))
		}
	}
}

// checkAnnexure applies the approval ceiling. A breach is a hard failure
// regardless of every other check; it returns true so the caller can force
// IsMatched false even when no other discrepancy was recorded.
func (e *Engine) checkAnnexure(invAmount decimal.Decimal, ax *model.Annexure, res *model.MatchResult) bool {
	if ax.ApprovedAmount == nil {
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("annexure %s is misconfigured: no approved amount ceiling", ax.ID))
		return false
	}
	if invAmount.GreaterThan(*ax.ApprovedAmount) {
		res.Discrepancies = append(res.Discrepancies,
			fmt.Sprintf("invoice amount %s exceeds annexure approved ceiling %s",
				invAmount.StringFixed(2), ax.ApprovedAmount.StringFixed(2)))
		return true
	}
	res.MatchDetails = append(res.MatchDetails, "amount within annexure approved ceiling")
	return false
}

func matchPOLines(desc string, poLines []model.LineItem) []model.LineItem {
	d := strings.ToLower(strings.TrimSpace(desc))
	if d == "" {
		return nil
	}
	var out []model.LineItem
	for _, pl := range poLines {
		p := strings.ToLower(strings.TrimSpace(pl.Description))
		if p == "" {
			continue
		}
		if strings.Contains(p, d) || strings.Contains(d, p) {
			out = append(out, pl)
		}
	}
	return out
}
