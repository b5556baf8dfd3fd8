package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"apflow/internal/model"
	"apflow/internal/service"
)

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Ingest(ctx context.Context, r io.Reader, originalFilename, contentType string, size int64, poNumber, approver string) (*model.Invoice, error) {
	args := m.Called(ctx, r, originalFilename, contentType, size, poNumber, approver)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Get(ctx context.Context, id string) (*model.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockInvoiceService) List(ctx context.Context, status model.Status, limit, offset int) (*service.InvoiceListResult, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InvoiceListResult), args.Error(1)
}

func (m *MockInvoiceService) Act(ctx context.Context, id string, req service.ActionRequest) (*model.Invoice, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Reprocess(ctx context.Context, id, actor string, role model.Role) (*model.Invoice, error) {
	args := m.Called(ctx, id, actor, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}
