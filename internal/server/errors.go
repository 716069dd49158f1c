package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	aidomain "github.com/smallbiznis/invoicely/internal/ai/domain"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	authdomain "github.com/smallbiznis/invoicely/internal/auth/domain"
	"github.com/smallbiznis/invoicely/internal/authorization"
	billingdomain "github.com/smallbiznis/invoicely/internal/billing/domain"
	blogdomain "github.com/smallbiznis/invoicely/internal/blog/domain"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/providers/pdf"
	publicinvoicedomain "github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"github.com/smallbiznis/invoicely/pkg/db"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type          string            `json:"type"`
	Message       string            `json:"message"`
	Errors        []ValidationError `json:"errors,omitempty"`
	Kind          string            `json:"kind,omitempty"`
	Limit         *int              `json:"limit,omitempty"`
	NextResetDate string            `json:"next_reset_date,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationErrors are domain sentinels reported as 400 with one entry each.
// The entry code is the sentinel text, the field is the text without its
// invalid_ prefix.
var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	quotadomain.ErrInvalidKind,
	quotadomain.ErrInvalidDelta,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrInvalidCompanyName,
	invoicedomain.ErrInvalidClientName,
	invoicedomain.ErrInvalidItems,
	invoicedomain.ErrInvalidItemDescription,
	invoicedomain.ErrInvalidItemQuantity,
	invoicedomain.ErrInvalidItemUnitPrice,
	invoicedomain.ErrInvalidCurrency,
	invoicedomain.ErrInvalidTaxRate,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidDueDate,
	invoicedomain.ErrInvalidInvoiceNumber,
	userdomain.ErrInvalidSubject,
	userdomain.ErrInvalidCurrency,
	userdomain.ErrInvalidTaxRate,
	userdomain.ErrInvalidInvoicePrefix,
	publicinvoicedomain.ErrInvalidTTL,
	aidomain.ErrEmptyPrompt,
	aidomain.ErrPromptTooLong,
	aidomain.ErrEmptyDocument,
	aidomain.ErrDocumentTooLarge,
	billingdomain.ErrInvalidSignature,
	billingdomain.ErrInvalidPayload,
	blogdomain.ErrInvalidSlug,
	blogdomain.ErrInvalidPage,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidActorType,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if codes := validationErrorCodes(err); len(codes) > 0 {
		entries := make([]ValidationError, 0, len(codes))
		for _, code := range codes {
			entries = append(entries, ValidationError{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  entries,
		}
	}

	var exceeded *quotadomain.ExceededError
	if errors.As(err, &exceeded) {
		limit := exceeded.Limit
		return http.StatusTooManyRequests, errorPayload{
			Type:          "quota_exceeded",
			Message:       exceeded.Error(),
			Kind:          string(exceeded.Kind),
			Limit:         &limit,
			NextResetDate: exceeded.NextResetDate.UTC().Format(time.RFC3339),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrDuplicateNumber):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "monthly limit reached",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream service failed",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, authdomain.ErrNotConfigured),
		errors.Is(err, aidomain.ErrNotConfigured),
		errors.Is(err, billingdomain.ErrNotConfigured),
		errors.Is(err, invoicedomain.ErrRendererUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog gives the request logger a stable type and code without
// logging the raw error text.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationErrorCodes returns one code per validation failure. Joined
// errors yield every member that is a validation error.
func validationErrorCodes(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var codes []string
		for _, member := range joined.Unwrap() {
			codes = append(codes, validationErrorCodes(member)...)
		}
		if len(codes) > 0 {
			return codes
		}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return []string{target.Error()}
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, publicinvoicedomain.ErrPublicInvoiceNotFound),
		errors.Is(err, userdomain.ErrUserNotFound),
		errors.Is(err, quotadomain.ErrLedgerNotFound),
		errors.Is(err, blogdomain.ErrPostNotFound),
		db.IsNotFound(err):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	switch {
	case errors.Is(err, aidomain.ErrUpstream),
		errors.Is(err, blogdomain.ErrCMSUnavailable),
		errors.Is(err, pdf.ErrRenderFailed):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, invoicedomain.ErrDuplicateNumber) {
		return "invoice number already exists"
	}
	return "conflict"
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_page_token":
		return "invalid page token"
	default:
		return "invalid value"
	}
}
