package handlers

import (
	"context"

	"github.com/skaiscraper/backend/internal/models"
	"github.com/skaiscraper/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) ListLedger(ctx context.Context, tenantID string, limit, offset int) (*models.LedgerPage, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerPage), args.Error(1)
}

func (m *MockLedger) Grant(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*services.Result, error) {
	args := m.Called(ctx, tenantID, amount, reason, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Result), args.Error(1)
}

func (m *MockLedger) Debit(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*services.Result, error) {
	args := m.Called(ctx, tenantID, amount, reason, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Result), args.Error(1)
}

func (m *MockLedger) CreditByOrder(ctx context.Context, tenantID, orderID string, amount int64, packID string) (*services.Result, error) {
	args := m.Called(ctx, tenantID, orderID, amount, packID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Result), args.Error(1)
}

func (m *MockLedger) RebuildFromLedger(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) VerifyChain(ctx context.Context, tenantID string) (*models.ChainReport, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChainReport), args.Error(1)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, actorID string) error {
	return m.Called(ctx, actorID).Error(0)
}
