package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind names a metered resource. Each kind has its own ledger columns on the
// users table.
type Kind string

const (
	KindPrompt  Kind = "prompt"
	KindInvoice Kind = "invoice"
)

func (k Kind) Valid() bool {
	return k == KindPrompt || k == KindInvoice
}

func ParseKind(value string) (Kind, error) {
	k := Kind(value)
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// Ledger is the per-user, per-kind monthly allowance.
type Ledger struct {
	UserID       snowflake.ID `gorm:"column:user_id"`
	Kind         Kind         `gorm:"-"`
	MonthlyLimit int          `gorm:"column:monthly_limit"`
	CurrentUsage int          `gorm:"column:current_usage"`
	Reserved     int          `gorm:"column:reserved"`
	LastReset    time.Time    `gorm:"column:last_reset"`
}

type Status struct {
	CanUse          bool      `json:"can_use"`
	Remaining       int       `json:"remaining"`
	Limit           int       `json:"limit"`
	CurrentUsage    int       `json:"current_usage"`
	NextResetDate   time.Time `json:"next_reset_date"`
	UsagePercentage int       `json:"usage_percentage"`
}

type Decision struct {
	Allowed       bool
	Remaining     int
	Limit         int
	NextResetDate time.Time
}

// Reservation holds one unit of capacity between a successful check and the
// outcome of the protected operation.
type Reservation struct {
	UserID snowflake.ID
	Kind   Kind
	Window time.Time
}
