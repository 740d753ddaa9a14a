package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/skaiscraper/backend/internal/models"
)

// WalletProjection maintains the per-tenant balance cache. The ledger is the
// source of truth; every write here happens in the same transaction as the
// ledger append it reflects, or during a rebuild.
type WalletProjection struct{}

func NewWalletProjection() *WalletProjection {
	return &WalletProjection{}
}

// GetBalance returns 0 for tenants that have never had a balance change.
func (p *WalletProjection) GetBalance(ctx context.Context, q Querier, tenantID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM token_wallets WHERE tenant_id = $1`, tenantID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("get balance", err)
	}
	return balance, nil
}

// LockForUpdate creates the wallet row on first use and takes a row lock on
// it for the rest of the transaction. All balance mutations for a tenant
// serialize here. A missing row is seeded from the ledger, so a wallet that
// was lost comes back with the replayed balance and last sequence.
func (p *WalletProjection) LockForUpdate(ctx context.Context, tx *sql.Tx, tenantID string) (*models.Wallet, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_wallets (tenant_id, balance, version, updated_at)
		SELECT $1, COALESCE(SUM(delta), 0), COALESCE(MAX(seq), 0), now()
		FROM ledger_entries
		WHERE tenant_id = $1
		  AND NOT EXISTS (SELECT 1 FROM token_wallets WHERE tenant_id = $1)
		ON CONFLICT (tenant_id) DO NOTHING`, tenantID); err != nil {
		return nil, persistErr("create wallet", err)
	}

	var wallet models.Wallet
	err := tx.QueryRowContext(ctx, `
		SELECT tenant_id, balance, version, updated_at
		FROM token_wallets
		WHERE tenant_id = $1
		FOR UPDATE`, tenantID).Scan(&wallet.TenantID, &wallet.Balance, &wallet.Version, &wallet.UpdatedAt)
	if err != nil {
		return nil, persistErr("lock wallet", err)
	}
	return &wallet, nil
}

// UpsertBalance writes newBalance and records seq, the last ledger entry the
// balance reflects, as the wallet version.
func (p *WalletProjection) UpsertBalance(ctx context.Context, q Querier, tenantID string, newBalance, seq int64) (*models.Wallet, error) {
	wallet := models.Wallet{TenantID: tenantID}
	err := q.QueryRowContext(ctx, `
		INSERT INTO token_wallets (tenant_id, balance, version, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET balance = EXCLUDED.balance, version = EXCLUDED.version, updated_at = now()
		RETURNING balance, version, updated_at`, tenantID, newBalance, seq,
	).Scan(&wallet.Balance, &wallet.Version, &wallet.UpdatedAt)
	if err != nil {
		return nil, persistErr("upsert balance", err)
	}
	return &wallet, nil
}

// ListDrifted returns tenants whose stored balance differs from the sum of
// their ledger deltas.
func (p *WalletProjection) ListDrifted(ctx context.Context, q Querier, limit int) ([]models.DriftReport, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT w.tenant_id, w.balance, COALESCE(l.total, 0)
		FROM token_wallets w
		LEFT JOIN (
			SELECT tenant_id, SUM(delta) AS total
			FROM ledger_entries
			GROUP BY tenant_id
		) l ON l.tenant_id = w.tenant_id
		WHERE w.balance <> COALESCE(l.total, 0)
		ORDER BY w.tenant_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, persistErr("list drifted wallets", err)
	}
	defer rows.Close()

	reports := []models.DriftReport{}
	for rows.Next() {
		var r models.DriftReport
		if err := rows.Scan(&r.TenantID, &r.ProjectedBalance, &r.LedgerBalance); err != nil {
			return nil, persistErr("scan drifted wallet", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate drifted wallets", err)
	}
	return reports, nil
}
