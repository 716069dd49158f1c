// Package domain holds the account and preference types shared by auth,
// quota and invoice code.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"gorm.io/datatypes"
)

// User is an account together with its two monthly quota ledgers.
type User struct {
	ID         snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ExternalID string       `gorm:"type:varchar(191);not null;uniqueIndex" json:"-"`
	Email      string       `gorm:"type:varchar(320)" json:"email"`
	Name       string       `gorm:"type:varchar(255)" json:"name"`

	MonthlyPromptLimit int       `gorm:"not null;default:10" json:"monthly_prompt_limit"`
	CurrentPromptUsage int       `gorm:"not null;default:0" json:"current_prompt_usage"`
	ReservedPrompts    int       `gorm:"not null;default:0" json:"-"`
	LastPromptReset    time.Time `gorm:"not null" json:"last_prompt_reset"`

	MonthlyInvoiceLimit int       `gorm:"not null;default:5" json:"monthly_invoice_limit"`
	CurrentInvoiceUsage int       `gorm:"not null;default:0" json:"current_invoice_usage"`
	ReservedInvoices    int       `gorm:"not null;default:0" json:"-"`
	LastInvoiceReset    time.Time `gorm:"not null" json:"last_invoice_reset"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Identity is what the identity provider tells us about a caller.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Role    string
}

// Preferences prefill new invoices.
type Preferences struct {
	UserID          snowflake.ID                              `gorm:"primaryKey;autoIncrement:false" json:"-"`
	DefaultCurrency string                                    `gorm:"type:varchar(3);not null;default:'USD'" json:"default_currency"`
	DefaultTaxRate  float64                                   `gorm:"not null;default:0" json:"default_tax_rate"`
	Company         datatypes.JSONType[invoicedomain.Company] `gorm:"not null" json:"company"`
	InvoicePrefix   string                                    `gorm:"type:varchar(16);not null;default:'INV'" json:"invoice_prefix"`
	UpdatedAt       time.Time                                 `gorm:"not null" json:"updated_at"`
}

func (Preferences) TableName() string { return "user_preferences" }

type UpdatePreferencesRequest struct {
	DefaultCurrency string                `json:"default_currency"`
	DefaultTaxRate  float64               `json:"default_tax_rate"`
	Company         invoicedomain.Company `json:"company"`
	InvoicePrefix   string                `json:"invoice_prefix"`
}

const (
	DefaultCurrency      = "USD"
	DefaultInvoicePrefix = "INV"
)
