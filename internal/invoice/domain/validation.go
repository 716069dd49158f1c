package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCompanyName     = errors.New("invalid_company_name")
	ErrInvalidClientName      = errors.New("invalid_client_name")
	ErrInvalidItems           = errors.New("invalid_items")
	ErrInvalidItemDescription = errors.New("invalid_item_description")
	ErrInvalidItemQuantity    = errors.New("invalid_item_quantity")
	ErrInvalidItemUnitPrice   = errors.New("invalid_item_unit_price")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidTaxRate         = errors.New("invalid_tax_rate")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidDueDate         = errors.New("invalid_due_date")
	ErrInvalidInvoiceNumber   = errors.New("invalid_invoice_number")
)

// Validate checks the required fields of a draft and returns every failure
// joined, or nil.
func (d Draft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Company.Name) == "" {
		errs = append(errs, ErrInvalidCompanyName)
	}
	if strings.TrimSpace(d.Client.Name) == "" {
		errs = append(errs, ErrInvalidClientName)
	}
	if len(d.Items) == 0 {
		errs = append(errs, ErrInvalidItems)
	}
	for _, item := range d.Items {
		if strings.TrimSpace(item.Description) == "" {
			errs = appendOnce(errs, ErrInvalidItemDescription)
		}
		if item.Quantity <= 0 {
			errs = appendOnce(errs, ErrInvalidItemQuantity)
		}
		if item.UnitPrice < 0 {
			errs = appendOnce(errs, ErrInvalidItemUnitPrice)
		}
	}
	if !validCurrency(d.Currency) {
		errs = append(errs, ErrInvalidCurrency)
	}
	if d.TaxRate < 0 || d.TaxRate > 100 {
		errs = append(errs, ErrInvalidTaxRate)
	}
	if d.IssueDate != nil && d.DueDate != nil && d.DueDate.Before(*d.IssueDate) {
		errs = append(errs, ErrInvalidDueDate)
	}
	return errors.Join(errs...)
}

// Normalize trims free-text fields and upper-cases the currency.
func (d Draft) Normalize() Draft {
	d.Company.Name = strings.TrimSpace(d.Company.Name)
	d.Client.Name = strings.TrimSpace(d.Client.Name)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.Notes = strings.TrimSpace(d.Notes)
	items := make([]LineItem, 0, len(d.Items))
	for _, item := range d.Items {
		item.Description = strings.TrimSpace(item.Description)
		items = append(items, item)
	}
	d.Items = items
	return d
}

func validCurrency(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func appendOnce(errs []error, err error) []error {
	for _, existing := range errs {
		if existing == err {
			return errs
		}
	}
	return append(errs, err)
}
