package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"apflow/internal/model"
)

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) GetPurchaseOrder(ctx context.Context, poNumber string) (*model.PurchaseOrder, error) {
	args := m.Called(ctx, poNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseOrder), args.Error(1)
}

func (m *MockLookup) GetGoodsReceipt(ctx context.Context, poNumber string) (*model.GoodsReceipt, error) {
	args := m.Called(ctx, poNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GoodsReceipt), args.Error(1)
}

func (m *MockLookup) GetAnnexure(ctx context.Context, poID string) (*model.Annexure, error) {
	args := m.Called(ctx, poID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Annexure), args.Error(1)
}
