package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"apflow/internal/model"
	"apflow/internal/notify"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Notify(ctx context.Context, inv *model.Invoice, newStatus model.Status) {
	m.Called(ctx, inv, newStatus)
}

func (m *MockDispatcher) Remind(ctx context.Context, alert notify.StaleAlert) {
	m.Called(ctx, alert)
}
