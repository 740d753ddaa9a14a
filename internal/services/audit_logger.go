package services

import (
	"github.com/skaiscraper/backend/internal/models"
	"go.uber.org/zap"
)

// Audit event types.
const (
	AuditEntryAppended   = "LEDGER_ENTRY"
	AuditDuplicateOrder  = "DUPLICATE_ORDER"
	AuditProjectionDrift = "PROJECTION_DRIFT"
	AuditRejected        = "REJECTED"
	AuditError           = "ERROR"
)

// AuditLogger writes one structured record per balance-affecting decision.
type AuditLogger struct {
	log *zap.Logger
}

func NewAuditLogger(log *zap.Logger) *AuditLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLogger{log: log.Named("audit")}
}

func (a *AuditLogger) LogEntry(entry *models.LedgerEntry) {
	fields := []zap.Field{
		zap.String("event_type", AuditEntryAppended),
		zap.String("entry_id", entry.ID),
		zap.String("tenant_id", entry.TenantID),
		zap.Int64("seq", entry.Seq),
		zap.Int64("delta", entry.Delta),
		zap.String("reason", entry.Reason),
		zap.Int64("balance_after", entry.BalanceAfter),
	}
	if entry.RefID != nil {
		fields = append(fields, zap.String("ref_id", *entry.RefID))
	}
	if actor, ok := entry.Metadata["actor_id"].(string); ok {
		fields = append(fields, zap.String("actor_id", actor))
	}
	a.log.Info("audit", fields...)
}

func (a *AuditLogger) LogDuplicate(tenantID, orderID string, balance int64) {
	a.log.Info("audit",
		zap.String("event_type", AuditDuplicateOrder),
		zap.String("tenant_id", tenantID),
		zap.String("ref_id", orderID),
		zap.Int64("balance", balance),
	)
}

func (a *AuditLogger) LogRejected(tenantID, op string, amount int64, err error) {
	a.log.Info("audit",
		zap.String("event_type", AuditRejected),
		zap.String("tenant_id", tenantID),
		zap.String("op", op),
		zap.Int64("amount", amount),
		zap.String("error", err.Error()),
	)
}

// LogDrift is the projection drift warning: the projection disagreed with
// the ledger and is about to be overwritten.
func (a *AuditLogger) LogDrift(tenantID string, projected, ledger int64) {
	a.log.Warn("projection drift detected",
		zap.String("event_type", AuditProjectionDrift),
		zap.String("tenant_id", tenantID),
		zap.Int64("projected_balance", projected),
		zap.Int64("ledger_balance", ledger),
		zap.Int64("difference", ledger-projected),
	)
}

func (a *AuditLogger) LogError(tenantID, op string, err error) {
	a.log.Error("audit",
		zap.String("event_type", AuditError),
		zap.String("tenant_id", tenantID),
		zap.String("op", op),
		zap.Error(err),
	)
}
