package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"apflow/internal/model"
	"apflow/internal/refdata"
)

// RefDataPostgres resolves purchase orders, goods receipts and annexures
// from PostgreSQL. Missing rows map to nil results, not errors.
type RefDataPostgres struct {
	db *sql.DB
}

// NewRefDataPostgres creates a new RefDataPostgres lookup.
func NewRefDataPostgres(db *sql.DB) *RefDataPostgres {
	return &RefDataPostgres{db: db}
}

var _ refdata.Lookup = (*RefDataPostgres)(nil)

// GetPurchaseOrder fetches a PO and its line items by PO number.
func (r *RefDataPostgres) GetPurchaseOrder(ctx context.Context, poNumber string) (*model.PurchaseOrder, error) {
	const q = `
		SELECT id, po_number, vendor_id, vendor_name, currency, total_amount, line_items
		FROM purchase_orders
		WHERE po_number = $1
	`
	var (
		po    model.PurchaseOrder
		total string
		lines []byte
	)
	err := r.db.QueryRowContext(ctx, q, poNumber).Scan(
		&po.ID,
		&po.PONumber,
		&po.VendorID,
		&po.VendorName,
		&po.Currency,
		&total,
		&lines,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup purchase order %s: %w", poNumber, err)
	}
	if po.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode PO total: %w", err)
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &po.LineItems); err != nil {
			return nil, fmt.Errorf("decode PO line items: %w", err)
		}
	}
	return &po, nil
}

// GetGoodsReceipt fetches the goods receipt recorded against a PO number.
func (r *RefDataPostgres) GetGoodsReceipt(ctx context.Context, poNumber string) (*model.GoodsReceipt, error) {
	const q = `
		SELECT gr.id, gr.items
		FROM goods_receipts gr
		JOIN purchase_orders po ON po.id = gr.po_id
		WHERE po.po_number = $1
	`
	var (
		gr    model.GoodsReceipt
		items []byte
	)
	err := r.db.QueryRowContext(ctx, q, poNumber).Scan(&gr.ID, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup goods receipt for %s: %w", poNumber, err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &gr.Items); err != nil {
			return nil, fmt.Errorf("decode goods receipt items: %w", err)
		}
	}
	return &gr, nil
}

// GetAnnexure fetches the annexure ceiling document tied to a PO id.
func (r *RefDataPostgres) GetAnnexure(ctx context.Context, poID string) (*model.Annexure, error) {
	const q = `SELECT id, po_id, approved_amount FROM annexures WHERE po_id = $1`
	var (
		ax       model.Annexure
		approved sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, poID).Scan(&ax.ID, &ax.POID, &approved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup annexure for %s: %w", poID, err)
	}
	if approved.Valid {
		amt, err := decimal.NewFromString(approved.String)
		if err != nil {
			return nil, fmt.Errorf("decode annexure ceiling: %w", err)
		}
		ax.ApprovedAmount = &amt
	}
	return &ax, nil
}
