package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"gorm.io/gorm"
)

type Repository interface {
	SetToken(ctx context.Context, db *gorm.DB, userID, invoiceID snowflake.ID, tokenHash string, expiresAt, now time.Time) (bool, error)
	ClearToken(ctx context.Context, db *gorm.DB, userID, invoiceID snowflake.ID, now time.Time) (bool, error)
	FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*invoicedomain.Invoice, error)
	// RevokeByTokenHash clears the link only if it still carries tokenHash.
	RevokeByTokenHash(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tokenHash string, now time.Time) error
}
