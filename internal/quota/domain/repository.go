package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindLedger(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind) (*Ledger, error)
	// ResetIfStale zeroes usage and reservations when last_reset lies outside
	// the month starting at monthStart. It reports whether a reset happened.
	ResetIfStale(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind, monthStart, now time.Time) (bool, error)
	Reserve(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind, monthStart time.Time) (bool, error)
	Commit(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind, monthStart time.Time) error
	Release(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind, monthStart time.Time) error
	AddToLimit(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind Kind, delta int) (bool, error)
}
