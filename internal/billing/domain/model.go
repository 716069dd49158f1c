package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const ProviderStripe = "stripe"

// Subscription links a processor customer to a user.
type Subscription struct {
	ID                   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID               snowflake.ID `gorm:"not null;index"`
	StripeCustomerID     string       `gorm:"type:varchar(191);not null;uniqueIndex"`
	StripeSubscriptionID string       `gorm:"type:varchar(191)"`
	Status               string       `gorm:"type:varchar(32);not null"`
	UpdatedAt            time.Time    `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// WebhookEvent records a processed delivery. The unique pair
// (provider, event_id) makes limit grants apply once per event.
type WebhookEvent struct {
	ID         snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Provider   string       `gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventID    string       `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType  string       `gorm:"type:varchar(128);not null"`
	UserID     snowflake.ID `gorm:"not null;index"`
	ReceivedAt time.Time    `gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeRecorded   Outcome = "recorded"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeUpdated    Outcome = "updated"
)

// Result describes what a webhook delivery did.
type Result struct {
	EventID string
	Type    string
	Outcome Outcome
	UserID  snowflake.ID
}
