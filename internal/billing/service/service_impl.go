package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	"github.com/smallbiznis/invoicely/internal/billing/domain"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	eventCheckoutCompleted       = "checkout.session.completed"
	eventInvoicePaid             = "invoice.payment_succeeded"
	eventSubscriptionUpdated     = "customer.subscription.updated"
	eventSubscriptionDeleted     = "customer.subscription.deleted"
	billingReasonSubscriptionNew = "subscription_create"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	Plans      *config.PlanConfigHolder
	Repo       domain.Repository
	Users      userdomain.Service
	Quota      quotadomain.Service
	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	secret     string
	genID      *snowflake.Node
	clock      clock.Clock
	plans      *config.PlanConfigHolder
	repo       domain.Repository
	users      userdomain.Service
	quota      quotadomain.Service
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		secret:     strings.TrimSpace(p.Cfg.Stripe.WebhookSecret),
		genID:      p.GenID,
		clock:      clk,
		plans:      p.Plans,
		repo:       p.Repo,
		users:      p.Users,
		quota:      p.Quota,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

// HandleWebhook verifies a Stripe delivery and applies it. Deliveries that
// cannot be acted on return a Result with a nil error so the processor stops
// retrying, except unresolved users which are left unrecorded.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (domain.Result, error) {
	if s.secret == "" {
		return domain.Result{}, domain.ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.Warn("stripe webhook rejected", zap.Error(err))
		return domain.Result{}, domain.ErrInvalidSignature
	}

	eventType := string(event.Type)
	s.obsMetrics.RecordPaymentEvent(ctx, domain.ProviderStripe, eventType)

	result := domain.Result{EventID: event.ID, Type: eventType}
	if event.Data == nil {
		result.Outcome = domain.OutcomeIgnored
		return result, nil
	}

	switch eventType {
	case eventCheckoutCompleted:
		return s.handleCheckout(ctx, result, event.Data.Raw)
	case eventInvoicePaid:
		return s.handleInvoicePaid(ctx, result, event.Data.Raw)
	case eventSubscriptionUpdated, eventSubscriptionDeleted:
		return s.handleSubscriptionChange(ctx, result, event.Data.Raw)
	default:
		result.Outcome = domain.OutcomeIgnored
		return result, nil
	}
}

func (s *Service) handleCheckout(ctx context.Context, result domain.Result, raw json.RawMessage) (domain.Result, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return result, domain.ErrInvalidPayload
	}

	userID, err := s.resolveCheckoutUser(ctx, &sess)
	if err != nil {
		return result, err
	}
	if userID == 0 {
		s.log.Warn("checkout session has no resolvable user",
			zap.String("event_id", result.EventID),
			zap.String("client_reference_id", sess.ClientReferenceID),
		)
		result.Outcome = domain.OutcomeUnresolved
		return result, nil
	}
	result.UserID = userID

	customerID := ""
	if sess.Customer != nil {
		customerID = strings.TrimSpace(sess.Customer.ID)
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.recordEvent(ctx, tx, result)
		if err != nil {
			return err
		}
		if !inserted {
			result.Outcome = domain.OutcomeDuplicate
			return nil
		}

		if customerID != "" {
			if err := s.repo.UpsertSubscription(ctx, tx, &domain.Subscription{
				ID:                   s.genID.Generate(),
				UserID:               userID,
				StripeCustomerID:     customerID,
				StripeSubscriptionID: subscriptionID,
				Status:               string(stripe.SubscriptionStatusActive),
				UpdatedAt:            s.clock.Now(),
			}); err != nil {
				return err
			}
		}

		if err := s.grantBonus(ctx, tx, result, customerID); err != nil {
			return err
		}
		result.Outcome = domain.OutcomeApplied
		return nil
	})
	if err != nil {
		return result, err
	}

	s.log.Info("checkout processed",
		zap.String("event_id", result.EventID),
		zap.String("user_id", userID.String()),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, result domain.Result, raw json.RawMessage) (domain.Result, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return result, domain.ErrInvalidPayload
	}
	if inv.Customer == nil || strings.TrimSpace(inv.Customer.ID) == "" {
		result.Outcome = domain.OutcomeUnresolved
		s.log.Warn("invoice event without customer", zap.String("event_id", result.EventID))
		return result, nil
	}

	sub, err := s.repo.FindSubscriptionByCustomer(ctx, s.db, inv.Customer.ID)
	if err != nil {
		return result, err
	}
	if sub == nil {
		s.log.Warn("invoice event for unknown customer",
			zap.String("event_id", result.EventID),
			zap.String("customer_id", inv.Customer.ID),
		)
		result.Outcome = domain.OutcomeUnresolved
		return result, nil
	}
	result.UserID = sub.UserID

	// The first invoice of a subscription is paid by the checkout that
	// already granted the bonus.
	firstInvoice := string(inv.BillingReason) == billingReasonSubscriptionNew

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.recordEvent(ctx, tx, result)
		if err != nil {
			return err
		}
		if !inserted {
			result.Outcome = domain.OutcomeDuplicate
			return nil
		}
		if firstInvoice {
			result.Outcome = domain.OutcomeRecorded
			return nil
		}
		if err := s.grantBonus(ctx, tx, result, inv.Customer.ID); err != nil {
			return err
		}
		result.Outcome = domain.OutcomeApplied
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) handleSubscriptionChange(ctx context.Context, result domain.Result, raw json.RawMessage) (domain.Result, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return result, domain.ErrInvalidPayload
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		result.Outcome = domain.OutcomeUnresolved
		return result, nil
	}

	updated, err := s.repo.UpdateSubscriptionStatus(ctx, s.db, sub.Customer.ID, sub.ID, string(sub.Status), s.clock.Now())
	if err != nil {
		return result, err
	}
	if !updated {
		s.log.Warn("subscription change for unknown customer",
			zap.String("event_id", result.EventID),
			zap.String("customer_id", sub.Customer.ID),
		)
		result.Outcome = domain.OutcomeUnresolved
		return result, nil
	}
	result.Outcome = domain.OutcomeUpdated
	return result, nil
}

// resolveCheckoutUser prefers the client reference, which carries the
// external subject, and falls back to metadata.user_id. Zero means no user.
func (s *Service) resolveCheckoutUser(ctx context.Context, sess *stripe.CheckoutSession) (snowflake.ID, error) {
	if ref := strings.TrimSpace(sess.ClientReferenceID); ref != "" {
		user, err := s.users.GetByExternalID(ctx, ref)
		switch {
		case err == nil:
			return user.ID, nil
		case !errors.Is(err, userdomain.ErrUserNotFound):
			return 0, err
		}
	}

	raw := strings.TrimSpace(sess.Metadata["user_id"])
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, nil
	}
	user, err := s.users.GetByID(ctx, snowflake.ID(id))
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.ID, nil
}

func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, result domain.Result) (bool, error) {
	return s.repo.InsertEvent(ctx, tx, &domain.WebhookEvent{
		ID:         s.genID.Generate(),
		Provider:   domain.ProviderStripe,
		EventID:    result.EventID,
		EventType:  result.Type,
		UserID:     result.UserID,
		ReceivedAt: s.clock.Now(),
	})
}

// grantBonus raises both monthly limits of result.UserID. Audit entries are
// written in the same transaction so a grant is never left unrecorded.
func (s *Service) grantBonus(ctx context.Context, tx *gorm.DB, result domain.Result, customerID string) error {
	plans := s.plans.Get()
	grants := []struct {
		kind  quotadomain.Kind
		delta int
	}{
		{quotadomain.KindPrompt, plans.PaidPromptBonus},
		{quotadomain.KindInvoice, plans.PaidInvoiceBonus},
	}
	for _, grant := range grants {
		if grant.delta <= 0 {
			continue
		}
		if err := s.quota.AddToLimitTx(ctx, tx, result.UserID, grant.kind, grant.delta); err != nil {
			return err
		}
		if s.audit == nil {
			continue
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeWebhook,
			ActorID:    result.EventID,
			Action:     auditdomain.ActionQuotaLimitGranted,
			TargetType: auditdomain.TargetTypeUser,
			TargetID:   result.UserID.String(),
			Metadata: map[string]any{
				"kind":        string(grant.kind),
				"delta":       grant.delta,
				"event_type":  result.Type,
				"customer_id": customerID,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
