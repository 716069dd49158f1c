package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid:
		return true
	}
	return false
}

// Company is the issuing party printed on an invoice.
type Company struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// Client is the billed party.
type Client struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItem prices are in minor currency units.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
}

func (li LineItem) Amount() int64 {
	return roundMinor(li.Quantity * float64(li.UnitPrice))
}

type Invoice struct {
	ID              snowflake.ID                   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID          snowflake.ID                   `gorm:"not null;uniqueIndex:ux_invoices_user_number,priority:1" json:"-"`
	InvoiceNumber   string                         `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_user_number,priority:2" json:"invoice_number"`
	Status          Status                         `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	Currency        string                         `gorm:"type:varchar(3);not null" json:"currency"`
	IssueDate       time.Time                      `gorm:"not null" json:"issue_date"`
	DueDate         *time.Time                     `json:"due_date,omitempty"`
	Notes           string                         `gorm:"type:text" json:"notes,omitempty"`
	TaxRate         float64                        `gorm:"not null;default:0" json:"tax_rate"`
	Company         datatypes.JSONType[Company]    `gorm:"not null" json:"company"`
	Client          datatypes.JSONType[Client]     `gorm:"not null" json:"client"`
	Items           datatypes.JSONType[[]LineItem] `gorm:"not null" json:"items"`
	Subtotal        int64                          `gorm:"not null" json:"subtotal"`
	TaxAmount       int64                          `gorm:"not null" json:"tax_amount"`
	Total           int64                          `gorm:"not null" json:"total"`
	PublicTokenHash *string                        `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	IsPublic        bool                           `gorm:"not null;default:false" json:"is_public"`
	PublicExpiresAt *time.Time                     `json:"public_expires_at,omitempty"`
	CreatedAt       time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                      `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Draft is the editable content of an invoice. The AI generator returns one
// without persisting it.
type Draft struct {
	Company   Company    `json:"company"`
	Client    Client     `json:"client"`
	Items     []LineItem `json:"items"`
	Currency  string     `json:"currency"`
	IssueDate *time.Time `json:"issue_date,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	TaxRate   float64    `json:"tax_rate"`
}

type CreateInvoiceRequest struct {
	Draft
	InvoiceNumber string `json:"invoice_number"`
	Status        Status `json:"status"`
}

type UpdateInvoiceRequest struct {
	Draft
	Status Status `json:"status"`
}

type Limits struct {
	Limit            int  `json:"limit"`
	Usage            int  `json:"usage"`
	CanCreateInvoice bool `json:"canCreateInvoice"`
	Remaining        int  `json:"remaining"`
}
