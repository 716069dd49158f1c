package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidKind    = errors.New("invalid_quota_kind")
	ErrInvalidDelta   = errors.New("invalid_quota_delta")
	ErrLedgerNotFound = errors.New("quota_ledger_not_found")
	ErrQuotaExceeded  = errors.New("quota_exceeded")
	ErrNilReservation = errors.New("nil_reservation")
)

// ExceededError is returned by the guard when the monthly allowance of a kind
// is used up.
type ExceededError struct {
	Kind          Kind
	Limit         int
	NextResetDate time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Monthly %s limit of %d reached. Resets on %s.",
		e.Kind, e.Limit, e.NextResetDate.UTC().Format("2006-01-02"))
}

func (e *ExceededError) Unwrap() error {
	return ErrQuotaExceeded
}
