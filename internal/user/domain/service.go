package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	EnsureUser(ctx context.Context, identity Identity) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	GetPreferences(ctx context.Context, userID snowflake.ID) (*Preferences, error)
	UpsertPreferences(ctx context.Context, userID snowflake.ID, req UpdatePreferencesRequest) (*Preferences, error)
}
