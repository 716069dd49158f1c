package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) SetToken(ctx context.Context, db *gorm.DB, userID, invoiceID snowflake.ID, tokenHash string, expiresAt, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET public_token_hash = ?, is_public = ?, public_expires_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		tokenHash,
		true,
		expiresAt,
		now,
		invoiceID,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClearToken(ctx context.Context, db *gorm.DB, userID, invoiceID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET public_token_hash = NULL, is_public = ?, public_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		false,
		now,
		invoiceID,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*invoicedomain.Invoice, error) {
	var item invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT *
		 FROM invoices
		 WHERE public_token_hash = ? AND is_public = ?
		 LIMIT 1`,
		tokenHash,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) RevokeByTokenHash(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tokenHash string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET public_token_hash = NULL, is_public = ?, public_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND public_token_hash = ?`,
		false,
		now,
		invoiceID,
		tokenHash,
	).Error
}
