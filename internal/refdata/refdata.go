package refdata

import (
	"context"

	"apflow/internal/model"
)

// Lookup fetches the reference documents reconciliation matches against.
// A nil result with a nil error means the document does not exist; only
// infrastructure failures return errors.
type Lookup interface {
	GetPurchaseOrder(ctx context.Context, poNumber string) (*model.PurchaseOrder, error)
	GetGoodsReceipt(ctx context.Context, poNumber string) (*model.GoodsReceipt, error)
	GetAnnexure(ctx context.Context, poID string) (*model.Annexure, error)
}
