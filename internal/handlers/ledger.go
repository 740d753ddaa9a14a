package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/skaiscraper/backend/internal/models"
	"github.com/skaiscraper/backend/internal/services"
	"go.uber.org/zap"
)

// TokenLedger is the part of services.TokenService the HTTP layer needs.
type TokenLedger interface {
	GetBalance(ctx context.Context, tenantID string) (int64, error)
	ListLedger(ctx context.Context, tenantID string, limit, offset int) (*models.LedgerPage, error)
	Grant(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*services.Result, error)
	Debit(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*services.Result, error)
	CreditByOrder(ctx context.Context, tenantID, orderID string, amount int64, packID string) (*services.Result, error)
	RebuildFromLedger(ctx context.Context, tenantID string) (int64, error)
	VerifyChain(ctx context.Context, tenantID string) (*models.ChainReport, error)
}

// sendLedgerError maps ledger errors onto HTTP status codes.
func sendLedgerError(w http.ResponseWriter, log *zap.Logger, err error) {
	var pe *services.PersistenceError
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTenant),
		errors.Is(err, services.ErrInvalidOrder),
		errors.Is(err, services.ErrInvalidPagination):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInsufficientBalance):
		services.SendErrorResponse(w, err.Error(), http.StatusPaymentRequired, nil)
	case errors.Is(err, services.ErrBalanceOverflow):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, services.ErrRateLimited):
		services.SendErrorResponse(w, err.Error(), http.StatusTooManyRequests, nil)
	case errors.As(err, &pe) && pe.Retryable():
		log.Warn("ledger temporarily unavailable", zap.Error(err))
		services.SendErrorResponse(w, "Ledger temporarily unavailable", http.StatusServiceUnavailable, nil)
	default:
		log.Error("ledger operation failed", zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
