package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*User, error)
	// InsertIfMissing creates the user unless a row with the same id or
	// external id exists. It reports whether a row was written.
	InsertIfMissing(ctx context.Context, db *gorm.DB, user *User) (bool, error)
	FindPreferences(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Preferences, error)
	UpsertPreferences(ctx context.Context, db *gorm.DB, prefs *Preferences) error
}
