package models

import (
	"time"
)

// Ledger entry reasons used by the built-in call sites. Usage debits are
// recorded as ReasonUsagePrefix + feature key.
const (
	ReasonPurchase    = "purchase"
	ReasonAdminGrant  = "admin_grant"
	ReasonSignupBonus = "signup_bonus"
	ReasonAdjustment  = "adjustment"
	ReasonRefund      = "refund"
	ReasonUsagePrefix = "usage:"
)

// LedgerEntry is one immutable balance change for a tenant.
type LedgerEntry struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenantId" db:"tenant_id"`
	Seq          int64     `json:"seq" db:"seq"`
	Delta        int64     `json:"delta" db:"delta"` // positive = credit, negative = debit
	Reason       string    `json:"reason" db:"reason"`
	RefID        *string   `json:"refId,omitempty" db:"ref_id"`
	BalanceAfter int64     `json:"balanceAfter" db:"balance_after"`
	Metadata     Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Wallet is the cached balance projection for a tenant.
type Wallet struct {
	TenantID  string    `json:"tenantId" db:"tenant_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int64     `json:"version" db:"version"` // seq of the last entry reflected
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// LedgerPage is the read model returned to billing and usage screens.
type LedgerPage struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int64         `json:"total"`
	Balance int64         `json:"balance"`
}

// DriftReport describes a tenant whose projection disagrees with its ledger.
type DriftReport struct {
	TenantID         string `json:"tenantId"`
	ProjectedBalance int64  `json:"projectedBalance"`
	LedgerBalance    int64  `json:"ledgerBalance"`
}

// ChainReport is the result of replaying a tenant's ledger from empty state.
type ChainReport struct {
	TenantID    string `json:"tenantId"`
	Entries     int64  `json:"entries"`
	LedgerSum   int64  `json:"ledgerSum"`
	Consistent  bool   `json:"consistent"`
	FirstBadSeq int64  `json:"firstBadSeq,omitempty"`
	Expected    int64  `json:"expectedBalanceAfter,omitempty"`
	Recorded    int64  `json:"recordedBalanceAfter,omitempty"`
}
