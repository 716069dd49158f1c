package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	CheckAndReserve(ctx context.Context, userID snowflake.ID, kind Kind) (Decision, *Reservation, error)
	RecordSuccess(ctx context.Context, r *Reservation) error
	Release(ctx context.Context, r *Reservation) error
	Guard(ctx context.Context, userID snowflake.ID, kind Kind, fn func(ctx context.Context) error) error
	GetStatus(ctx context.Context, userID snowflake.ID, kind Kind) (Status, error)
	AddToLimit(ctx context.Context, userID snowflake.ID, kind Kind, delta int) error
	// AddToLimitTx applies the adjustment inside a caller-owned transaction.
	AddToLimitTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, kind Kind, delta int) error
}
