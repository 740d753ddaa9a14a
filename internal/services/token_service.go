package services

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skaiscraper/backend/internal/config"
	"github.com/skaiscraper/backend/internal/metrics"
	"github.com/skaiscraper/backend/internal/models"
	"go.uber.org/zap"
)

const (
	opGrant         = "grant"
	opDebit         = "debit"
	opCreditByOrder = "credit_by_order"
	opRebuild       = "rebuild"

	chainBatchSize = 500
)

// Result is returned by every balance mutation.
type Result struct {
	NewBalance int64               `json:"newBalance"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Entry      *models.LedgerEntry `json:"entry,omitempty"`
}

// TokenService is the only sanctioned way to change a tenant's token
// balance. Each mutation locks the tenant's wallet row, appends one ledger
// entry and updates the projection inside a single transaction.
type TokenService struct {
	db      *sql.DB
	ledger  *LedgerStore
	wallets *WalletProjection
	audit   *AuditLogger
	metrics *metrics.LedgerMetrics
	log     *zap.Logger
	cfg     *config.LedgerConfig
	newID   func() string
}

func NewTokenService(db *sql.DB, cfg *config.LedgerConfig, log *zap.Logger, m *metrics.LedgerMetrics) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.LedgerConfig{DefaultPageSize: 20, MaxPageSize: 100}
	}
	return &TokenService{
		db:      db,
		ledger:  NewLedgerStore(),
		wallets: NewWalletProjection(),
		audit:   NewAuditLogger(log),
		metrics: m,
		log:     log.Named("ledger.service"),
		cfg:     cfg,
		newID:   newEntryID,
	}
}

func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Grant adds amount tokens to the tenant's balance.
func (s *TokenService) Grant(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*Result, error) {
	if err := validateMutation(tenantID, amount); err != nil {
		return nil, err
	}
	return s.apply(ctx, opGrant, tenantID, amount, normalizeReason(reason, models.ReasonAdminGrant), nil, metadata)
}

// Debit removes amount tokens from the tenant's balance. Whether the balance
// may go negative is governed by LedgerConfig.AllowOverdraft.
func (s *TokenService) Debit(ctx context.Context, tenantID string, amount int64, reason string, metadata models.Metadata) (*Result, error) {
	if err := validateMutation(tenantID, amount); err != nil {
		return nil, err
	}
	return s.apply(ctx, opDebit, tenantID, -amount, normalizeReason(reason, "usage"), nil, metadata)
}

// CreditByOrder credits a purchase at most once per (tenant, order). A
// redelivered order returns the current balance with Duplicate set and
// writes nothing.
func (s *TokenService) CreditByOrder(ctx context.Context, tenantID, orderID string, amount int64, packID string) (*Result, error) {
	if err := validateMutation(tenantID, amount); err != nil {
		return nil, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidOrder
	}

	metadata := models.Metadata{}
	if packID != "" {
		metadata["pack_id"] = packID
	}
	return s.apply(ctx, opCreditByOrder, tenantID, amount, models.ReasonPurchase, &orderID, metadata)
}

func (s *TokenService) apply(ctx context.Context, op, tenantID string, delta int64, reason string, refID *string, metadata models.Metadata) (*Result, error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail(op, tenantID, start, persistErr("begin", err))
	}
	defer tx.Rollback()

	wallet, err := s.wallets.LockForUpdate(ctx, tx, tenantID)
	if err != nil {
		return nil, s.fail(op, tenantID, start, err)
	}

	newBalance, err := safeAdd(wallet.Balance, delta)
	if err != nil {
		return nil, s.reject(op, tenantID, delta, start, err)
	}
	if delta < 0 && newBalance < 0 && !s.cfg.AllowOverdraft {
		return nil, s.reject(op, tenantID, delta, start, ErrInsufficientBalance)
	}

	// Sequence comes from the ledger itself; the wallet version is only a cache of it.
	lastSeq, err := s.ledger.LastSeq(ctx, tx, tenantID)
	if err != nil {
		return nil, s.fail(op, tenantID, start, err)
	}

	entry := &models.LedgerEntry{
		ID:           s.newID(),
		TenantID:     tenantID,
		Seq:          lastSeq + 1,
		Delta:        delta,
		Reason:       reason,
		RefID:        refID,
		BalanceAfter: newBalance,
		Metadata:     metadata,
	}

	if refID != nil {
		err = s.ledger.AppendOnce(ctx, tx, entry)
		if errors.Is(err, errDuplicateOrder) {
			s.audit.LogDuplicate(tenantID, *refID, wallet.Balance)
			s.metrics.ObserveOperation(op, metrics.OutcomeDuplicate, start)
			return &Result{NewBalance: wallet.Balance, Duplicate: true}, nil
		}
	} else {
		err = s.ledger.Append(ctx, tx, entry)
	}
	if err != nil {
		return nil, s.fail(op, tenantID, start, err)
	}

	if _, err := s.wallets.UpsertBalance(ctx, tx, tenantID, newBalance, entry.Seq); err != nil {
		return nil, s.fail(op, tenantID, start, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, s.fail(op, tenantID, start, persistErr("commit", err))
	}

	s.audit.LogEntry(entry)
	s.metrics.RecordEntry(reason, delta)
	s.metrics.ObserveOperation(op, metrics.OutcomeApplied, start)

	return &Result{NewBalance: newBalance, Entry: entry}, nil
}

// GetBalance is the fast read path; it never scans the ledger.
func (s *TokenService) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	if strings.TrimSpace(tenantID) == "" {
		return 0, ErrInvalidTenant
	}
	return s.wallets.GetBalance(ctx, s.db, tenantID)
}

// ListLedger returns one page of history together with the total entry count
// and the current balance, all read from the same snapshot.
func (s *TokenService) ListLedger(ctx context.Context, tenantID string, limit, offset int) (*models.LedgerPage, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidTenant
	}
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidPagination
	}
	if limit == 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, persistErr("begin", err)
	}
	defer tx.Rollback()

	entries, err := s.ledger.ListByTenant(ctx, tx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.ledger.CountByTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	balance, err := s.wallets.GetBalance(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr("commit", err)
	}

	return &models.LedgerPage{Entries: entries, Total: total, Balance: balance}, nil
}

// FindOrder returns the ledger entry that settled orderID, if any.
func (s *TokenService) FindOrder(ctx context.Context, tenantID, orderID string) (*models.LedgerEntry, bool, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, false, ErrInvalidTenant
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, false, ErrInvalidOrder
	}
	entry, err := s.ledger.FindByRef(ctx, s.db, tenantID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// RebuildFromLedger recomputes the tenant's balance and last sequence from the
// ledger and overwrites the projection with them. A balance disagreement is
// logged as drift.
func (s *TokenService) RebuildFromLedger(ctx context.Context, tenantID string) (int64, error) {
	if strings.TrimSpace(tenantID) == "" {
		return 0, ErrInvalidTenant
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.fail(opRebuild, tenantID, start, persistErr("begin", err))
	}
	defer tx.Rollback()

	wallet, err := s.wallets.LockForUpdate(ctx, tx, tenantID)
	if err != nil {
		return 0, s.fail(opRebuild, tenantID, start, err)
	}
	sum, err := s.ledger.SumDeltas(ctx, tx, tenantID)
	if err != nil {
		return 0, s.fail(opRebuild, tenantID, start, err)
	}
	lastSeq, err := s.ledger.LastSeq(ctx, tx, tenantID)
	if err != nil {
		return 0, s.fail(opRebuild, tenantID, start, err)
	}

	if sum != wallet.Balance {
		s.audit.LogDrift(tenantID, wallet.Balance, sum)
		s.metrics.RecordDrift()
	}

	if _, err := s.wallets.UpsertBalance(ctx, tx, tenantID, sum, lastSeq); err != nil {
		return 0, s.fail(opRebuild, tenantID, start, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail(opRebuild, tenantID, start, persistErr("commit", err))
	}

	s.metrics.ObserveOperation(opRebuild, metrics.OutcomeApplied, start)
	return sum, nil
}

// ReconcileDrifted rebuilds every tenant (up to limit) whose projection
// disagrees with its ledger and returns what it found. It stops at the
// first failed rebuild.
func (s *TokenService) ReconcileDrifted(ctx context.Context, limit int) ([]models.DriftReport, error) {
	if limit <= 0 {
		limit = 1000
	}
	drifted, err := s.wallets.ListDrifted(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}

	repaired := make([]models.DriftReport, 0, len(drifted))
	for _, report := range drifted {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		balance, err := s.RebuildFromLedger(ctx, report.TenantID)
		if err != nil {
			return repaired, err
		}
		report.LedgerBalance = balance
		repaired = append(repaired, report)
	}
	return repaired, nil
}

// VerifyChain replays the tenant's ledger oldest first and checks that every
// entry's balance_after equals the running sum of deltas.
func (s *TokenService) VerifyChain(ctx context.Context, tenantID string) (*models.ChainReport, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidTenant
	}

	report := &models.ChainReport{TenantID: tenantID, Consistent: true}
	var afterSeq int64
	for {
		batch, err := s.ledger.ListAscending(ctx, s.db, tenantID, afterSeq, chainBatchSize)
		if err != nil {
			return nil, err
		}
		for _, entry := range batch {
			sum, err := safeAdd(report.LedgerSum, entry.Delta)
			if err != nil {
				return nil, err
			}
			report.LedgerSum = sum
			report.Entries++
			if report.Consistent && entry.BalanceAfter != sum {
				report.Consistent = false
				report.FirstBadSeq = entry.Seq
				report.Expected = sum
				report.Recorded = entry.BalanceAfter
			}
			afterSeq = entry.Seq
		}
		if len(batch) < chainBatchSize {
			return report, nil
		}
	}
}

func (s *TokenService) reject(op, tenantID string, delta int64, start time.Time, err error) error {
	s.audit.LogRejected(tenantID, op, delta, err)
	s.metrics.ObserveOperation(op, metrics.OutcomeRejected, start)
	return err
}

func (s *TokenService) fail(op, tenantID string, start time.Time, err error) error {
	s.audit.LogError(tenantID, op, err)
	s.metrics.ObserveOperation(op, metrics.OutcomeFailed, start)
	return err
}

func validateMutation(tenantID string, amount int64) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrInvalidTenant
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func normalizeReason(reason, fallback string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fallback
	}
	return reason
}

func safeAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrBalanceOverflow
	}
	return a + b, nil
}
