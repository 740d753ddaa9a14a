package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrInvalidAmount       = errors.New("ledger: amount must be a positive integer")
	ErrInvalidTenant       = errors.New("ledger: tenant id is required")
	ErrInvalidOrder        = errors.New("ledger: order id is required")
	ErrInvalidPagination   = errors.New("ledger: invalid pagination")
	ErrInsufficientBalance = errors.New("ledger: insufficient token balance")
	ErrBalanceOverflow     = errors.New("ledger: balance out of range")
	ErrRateLimited         = errors.New("ledger: rate limit exceeded")

	// errDuplicateOrder never leaves CreditByOrder.
	errDuplicateOrder = errors.New("ledger: order already credited")
)

// PersistenceError reports that the ledger or wallet store was unreachable or
// rejected a statement. Nothing is assumed committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient on the Postgres side
// (serialization failure, deadlock, lock timeout or a lost connection). The
// core never retries; callers may use this to decide on backoff.
func (e *PersistenceError) Retryable() bool {
	var pqErr *pq.Error
	if !errors.As(e.Err, &pqErr) {
		return false
	}
	switch pqErr.Code.Name() {
	case "serialization_failure", "deadlock_detected", "lock_not_available":
		return true
	}
	return pqErr.Code.Class() == "08"
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err originated in the storage layer.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
