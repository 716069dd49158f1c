package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/user/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, external_id, email, name,
	monthly_prompt_limit, current_prompt_usage, reserved_prompts, last_prompt_reset,
	monthly_invoice_limit, current_invoice_usage, reserved_invoices, last_invoice_reset,
	created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE external_id = ?`,
		externalID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) InsertIfMissing(ctx context.Context, db *gorm.DB, user *domain.User) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPreferences(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Preferences, error) {
	var prefs domain.Preferences
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, default_currency, default_tax_rate, company, invoice_prefix, updated_at
		 FROM user_preferences
		 WHERE user_id = ?`,
		userID,
	).Scan(&prefs).Error
	if err != nil {
		return nil, err
	}
	if prefs.UserID == 0 {
		return nil, nil
	}
	return &prefs, nil
}

func (r *repo) UpsertPreferences(ctx context.Context, db *gorm.DB, prefs *domain.Preferences) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"default_currency", "default_tax_rate", "company", "invoice_prefix", "updated_at"}),
		}).
		Create(prefs).Error
}
