package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"apflow/internal/model"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, documentRef string) (*model.ExtractedFields, error) {
	args := m.Called(ctx, documentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractedFields), args.Error(1)
}
