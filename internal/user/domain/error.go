package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user_not_found")
	ErrInvalidSubject       = errors.New("invalid_subject")
	ErrInvalidCurrency      = errors.New("invalid_default_currency")
	ErrInvalidTaxRate       = errors.New("invalid_default_tax_rate")
	ErrInvalidInvoicePrefix = errors.New("invalid_invoice_prefix")
)
