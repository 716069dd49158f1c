package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/invoicely/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (id, provider, event_id, event_type, user_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, event_id) DO NOTHING`
	if db.Dialector.Name() == "mysql" {
		query = `INSERT IGNORE INTO webhook_events (id, provider, event_id, event_type, user_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	}

	res := db.WithContext(ctx).Exec(query,
		event.ID,
		event.Provider,
		event.EventID,
		event.EventType,
		event.UserID,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "stripe_subscription_id", "status", "updated_at"}),
	}).Create(sub).Error
}

func (r *repo) FindSubscriptionByCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, stripe_customer_id, stripe_subscription_id, status, updated_at
		 FROM subscriptions
		 WHERE stripe_customer_id = ?
		 LIMIT 1`,
		customerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, customerID, subscriptionID, status string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, stripe_subscription_id = ?, updated_at = ?
		 WHERE stripe_customer_id = ?`,
		status,
		subscriptionID,
		now,
		customerID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
