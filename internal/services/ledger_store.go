package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/skaiscraper/backend/internal/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx so store calls can join the
// caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const entryColumns = `id, tenant_id, seq, delta, reason, ref_id, balance_after, metadata, created_at`

// LedgerStore persists ledger entries. It only ever inserts; there is no
// update or delete path.
type LedgerStore struct{}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Append inserts entry and fills in its CreatedAt.
func (s *LedgerStore) Append(ctx context.Context, q Querier, entry *models.LedgerEntry) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, seq, delta, reason, ref_id, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		RETURNING created_at`,
		entry.ID, entry.TenantID, entry.Seq, entry.Delta, entry.Reason,
		nullString(entry.RefID), entry.BalanceAfter, entry.Metadata,
	).Scan(&entry.CreatedAt)
	return persistErr("append entry", err)
}

// AppendOnce inserts entry unless the tenant already has an entry with the
// same ref id, in which case it returns errDuplicateOrder and writes nothing.
func (s *LedgerStore) AppendOnce(ctx context.Context, q Querier, entry *models.LedgerEntry) error {
	if entry.RefID == nil || *entry.RefID == "" {
		return ErrInvalidOrder
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, seq, delta, reason, ref_id, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		ON CONFLICT (tenant_id, ref_id) WHERE ref_id IS NOT NULL DO NOTHING
		RETURNING created_at`,
		entry.ID, entry.TenantID, entry.Seq, entry.Delta, entry.Reason,
		nullString(entry.RefID), entry.BalanceAfter, entry.Metadata,
	).Scan(&entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errDuplicateOrder
	}
	return persistErr("append entry once", err)
}

// FindByRef returns the entry settled for refID, or sql.ErrNoRows.
func (s *LedgerStore) FindByRef(ctx context.Context, q Querier, tenantID, refID string) (*models.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE tenant_id = $1 AND ref_id = $2`, tenantID, refID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, persistErr("find entry by ref", err)
	}
	return entry, nil
}

// ListByTenant returns a page of entries, newest first. Ordering is on the
// per-tenant sequence, which is assigned under the wallet row lock and never
// changes, so concurrent appends only ever land ahead of offset 0.
func (s *LedgerStore) ListByTenant(ctx context.Context, q Querier, tenantID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, persistErr("list entries", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListAscending returns entries oldest first starting after afterSeq.
func (s *LedgerStore) ListAscending(ctx context.Context, q Querier, tenantID string, afterSeq int64, limit int) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE tenant_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`, tenantID, afterSeq, limit)
	if err != nil {
		return nil, persistErr("list entries ascending", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (s *LedgerStore) CountByTenant(ctx context.Context, q Querier, tenantID string) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE tenant_id = $1`, tenantID).Scan(&total)
	if err != nil {
		return 0, persistErr("count entries", err)
	}
	return total, nil
}

// SumDeltas aggregates the full history of a tenant. Reconciliation only.
func (s *LedgerStore) SumDeltas(ctx context.Context, q Querier, tenantID string) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE tenant_id = $1`, tenantID).Scan(&sum)
	if err != nil {
		return 0, persistErr("sum deltas", err)
	}
	return sum, nil
}

// LastSeq returns the highest sequence the tenant has used, or 0. Callers
// that append must hold the wallet row lock.
func (s *LedgerStore) LastSeq(ctx context.Context, q Querier, tenantID string) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE tenant_id = $1`, tenantID).Scan(&seq)
	if err != nil {
		return 0, persistErr("last seq", err)
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		entry models.LedgerEntry
		refID sql.NullString
	)
	if err := row.Scan(
		&entry.ID, &entry.TenantID, &entry.Seq, &entry.Delta, &entry.Reason,
		&refID, &entry.BalanceAfter, &entry.Metadata, &entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	if refID.Valid {
		ref := refID.String
		entry.RefID = &ref
	}
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, persistErr("scan entry", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate entries", err)
	}
	return entries, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
