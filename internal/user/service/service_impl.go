package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Plans *config.PlanConfigHolder
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	plans *config.PlanConfigHolder
	repo  domain.Repository
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
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: clk,
		plans: p.Plans,
		repo:  p.Repo,
	}
}

// EnsureUser returns the account for identity, creating it with a fresh
// ledger on first sight. Concurrent first requests converge on one row.
func (s *Service) EnsureUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, domain.ErrInvalidSubject
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := s.newUser(s.genID.Generate(), subject, identity)
	created, err := s.repo.InsertIfMissing(ctx, s.db, user)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("user created",
			zap.String("user_id", user.ID.String()),
			zap.Int("monthly_prompt_limit", user.MonthlyPromptLimit),
			zap.Int("monthly_invoice_limit", user.MonthlyInvoiceLimit),
		)
		return user, nil
	}

	existing, err = s.repo.FindByExternalID(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrUserNotFound
	}
	return existing, nil
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	user, err := s.repo.FindByExternalID(ctx, s.db, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// GetPreferences returns stored preferences or the defaults when none were
// saved yet.
func (s *Service) GetPreferences(ctx context.Context, userID snowflake.ID) (*domain.Preferences, error) {
	prefs, err := s.repo.FindPreferences(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if prefs != nil {
		return prefs, nil
	}
	return &domain.Preferences{
		UserID:          userID,
		DefaultCurrency: domain.DefaultCurrency,
		InvoicePrefix:   domain.DefaultInvoicePrefix,
		Company:         datatypes.NewJSONType(invoicedomain.Company{}),
	}, nil
}

// UpsertPreferences saves preferences. A user row with default limits is
// created first when none exists for userID.
func (s *Service) UpsertPreferences(ctx context.Context, userID snowflake.ID, req domain.UpdatePreferencesRequest) (*domain.Preferences, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.DefaultCurrency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}
	if req.DefaultTaxRate < 0 || req.DefaultTaxRate > 100 {
		return nil, domain.ErrInvalidTaxRate
	}
	prefix := strings.ToUpper(strings.TrimSpace(req.InvoicePrefix))
	if prefix == "" {
		prefix = domain.DefaultInvoicePrefix
	}
	if len(prefix) > 16 || strings.ContainsAny(prefix, " /\\{}") {
		return nil, domain.ErrInvalidInvoicePrefix
	}

	now := s.clock.Now().UTC()
	prefs := &domain.Preferences{
		UserID:          userID,
		DefaultCurrency: currency,
		DefaultTaxRate:  req.DefaultTaxRate,
		Company:         datatypes.NewJSONType(req.Company),
		InvoicePrefix:   prefix,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			placeholder := s.newUser(userID, fmt.Sprintf("user:%s", userID), domain.Identity{})
			if _, err := s.repo.InsertIfMissing(ctx, tx, placeholder); err != nil {
				return err
			}
		}
		return s.repo.UpsertPreferences(ctx, tx, prefs)
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *Service) newUser(id snowflake.ID, subject string, identity domain.Identity) *domain.User {
	plans := s.plans.Get()
	now := s.clock.Now().UTC()
	return &domain.User{
		ID:                  id,
		ExternalID:          subject,
		Email:               strings.TrimSpace(identity.Email),
		Name:                strings.TrimSpace(identity.Name),
		MonthlyPromptLimit:  plans.DefaultPromptLimit,
		LastPromptReset:     now,
		MonthlyInvoiceLimit: plans.DefaultInvoiceLimit,
		LastInvoiceReset:    now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
