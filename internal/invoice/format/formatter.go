package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const DefaultInvoiceNumberTemplate = "{PREFIX}-{ULID}"

// FormatInvoiceNumber expands template for an invoice issued at issuedAt.
// {ULID} is built from issuedAt, so numbers sort by issue time.
func FormatInvoiceNumber(template, prefix string, issuedAt time.Time) (string, error) {
	if template == "" {
		template = DefaultInvoiceNumberTemplate
	}

	out := template
	out = strings.ReplaceAll(out, "{PREFIX}", strings.ToUpper(strings.TrimSpace(prefix)))
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))

	if strings.Contains(out, "{ULID}") {
		id, err := ulid.New(ulid.Timestamp(issuedAt), ulid.DefaultEntropy())
		if err != nil {
			return "", fmt.Errorf("generate ulid: %w", err)
		}
		out = strings.ReplaceAll(out, "{ULID}", id.String())
	}

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	out = strings.TrimLeft(out, "-")
	if out == "" {
		return "", fmt.Errorf("invoice number template %q produced an empty number", template)
	}
	return out, nil
}
