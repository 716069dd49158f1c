package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/quota/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// columns maps a kind to its ledger columns on the users table.
type columns struct {
	limit     string
	usage     string
	reserved  string
	lastReset string
}

var ledgerColumns = map[domain.Kind]columns{
	domain.KindPrompt: {
		limit:     "monthly_prompt_limit",
		usage:     "current_prompt_usage",
		reserved:  "reserved_prompts",
		lastReset: "last_prompt_reset",
	},
	domain.KindInvoice: {
		limit:     "monthly_invoice_limit",
		usage:     "current_invoice_usage",
		reserved:  "reserved_invoices",
		lastReset: "last_invoice_reset",
	},
}

func columnsFor(kind domain.Kind) (columns, error) {
	cols, ok := ledgerColumns[kind]
	if !ok {
		return columns{}, domain.ErrInvalidKind
	}
	return cols, nil
}

func (r *repo) FindLedger(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind) (*domain.Ledger, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return nil, err
	}

	var ledger domain.Ledger
	err = db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT id AS user_id, %s AS monthly_limit, %s AS current_usage, %s AS reserved, %s AS last_reset
		 FROM users
		 WHERE id = ?`,
		cols.limit, cols.usage, cols.reserved, cols.lastReset,
	), userID).Scan(&ledger).Error
	if err != nil {
		return nil, err
	}
	if ledger.UserID == 0 {
		return nil, nil
	}
	ledger.Kind = kind
	return &ledger, nil
}

func (r *repo) ResetIfStale(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind, monthStart, now time.Time) (bool, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Exec(fmt.Sprintf(
		`UPDATE users
		 SET %s = 0, %s = 0, %s = ?, updated_at = ?
		 WHERE id = ? AND (%s < ? OR %s >= ?)`,
		cols.usage, cols.reserved, cols.lastReset, cols.lastReset, cols.lastReset,
	), now, now, userID, monthStart, monthStart.AddDate(0, 1, 0))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Reserve(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind, monthStart time.Time) (bool, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Exec(fmt.Sprintf(
		`UPDATE users
		 SET %s = %s + 1
		 WHERE id = ? AND %s + %s < %s AND %s >= ? AND %s < ?`,
		cols.reserved, cols.reserved,
		cols.usage, cols.reserved, cols.limit,
		cols.lastReset, cols.lastReset,
	), userID, monthStart, monthStart.AddDate(0, 1, 0))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Commit(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind, monthStart time.Time) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Exec(fmt.Sprintf(
		`UPDATE users
		 SET %s = %s + 1, %s = CASE WHEN %s > 0 THEN %s - 1 ELSE 0 END
		 WHERE id = ? AND %s >= ? AND %s < ?`,
		cols.usage, cols.usage,
		cols.reserved, cols.reserved, cols.reserved,
		cols.lastReset, cols.lastReset,
	), userID, monthStart, monthStart.AddDate(0, 1, 0)).Error
}

func (r *repo) Release(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind, monthStart time.Time) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Exec(fmt.Sprintf(
		`UPDATE users
		 SET %s = %s - 1
		 WHERE id = ? AND %s > 0 AND %s >= ? AND %s < ?`,
		cols.reserved, cols.reserved,
		cols.reserved, cols.lastReset, cols.lastReset,
	), userID, monthStart, monthStart.AddDate(0, 1, 0)).Error
}

func (r *repo) AddToLimit(ctx context.Context, db *gorm.DB, userID snowflake.ID, kind domain.Kind, delta int) (bool, error) {
	cols, err := columnsFor(kind)
	if err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Exec(fmt.Sprintf(
		`UPDATE users
		 SET %s = %s + ?
		 WHERE id = ?`,
		cols.limit, cols.limit,
	), delta, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
