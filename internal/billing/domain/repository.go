package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent reports whether the row was new.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	UpsertSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindSubscriptionByCustomer(ctx context.Context, db *gorm.DB, customerID string) (*Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, customerID, subscriptionID, status string, now time.Time) (bool, error)
}
