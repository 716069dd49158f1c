package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Repo         domain.Repository
	QuotaMetrics *obsmetrics.QuotaMetrics `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         domain.Repository
	quotaMetrics *obsmetrics.QuotaMetrics
	obsMetrics   *obsmetrics.Metrics
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
		db:           p.DB,
		log:          p.Log.Named("quota.service"),
		clock:        clk,
		repo:         p.Repo,
		quotaMetrics: p.QuotaMetrics,
		obsMetrics:   p.ObsMetrics,
	}
}

// CheckAndReserve applies the lazy monthly reset and then takes one unit of
// capacity in a single conditional update. A denied decision carries no
// reservation.
func (s *Service) CheckAndReserve(ctx context.Context, userID snowflake.ID, kind domain.Kind) (domain.Decision, *domain.Reservation, error) {
	if !kind.Valid() {
		return domain.Decision{}, nil, domain.ErrInvalidKind
	}

	now := s.clock.Now().UTC()
	monthStart := domain.MonthStart(now)
	if err := s.resetIfStale(ctx, userID, kind, monthStart, now); err != nil {
		return domain.Decision{}, nil, err
	}

	reserved, err := s.repo.Reserve(ctx, s.db, userID, kind, monthStart)
	if err != nil {
		return domain.Decision{}, nil, err
	}

	ledger, err := s.repo.FindLedger(ctx, s.db, userID, kind)
	if err != nil {
		return domain.Decision{}, nil, err
	}
	if ledger == nil {
		return domain.Decision{}, nil, domain.ErrLedgerNotFound
	}

	// Remaining is reported as seen by this caller, before its own unit.
	others := ledger.Reserved
	if reserved && others > 0 {
		others--
	}
	decision := domain.Decision{
		Allowed:       reserved,
		Remaining:     domain.Remaining(ledger.MonthlyLimit, ledger.CurrentUsage, others),
		Limit:         ledger.MonthlyLimit,
		NextResetDate: domain.NextResetDate(now),
	}
	s.obsMetrics.RecordQuotaDecision(ctx, string(kind), reserved)
	if !reserved {
		s.quotaMetrics.Observe(string(kind), obsmetrics.QuotaOutcomeDenied)
		return decision, nil, nil
	}

	s.quotaMetrics.Observe(string(kind), obsmetrics.QuotaOutcomeAllowed)
	return decision, &domain.Reservation{UserID: userID, Kind: kind, Window: monthStart}, nil
}

// RecordSuccess turns a reservation into usage. Call it only after the
// protected operation succeeded.
func (s *Service) RecordSuccess(ctx context.Context, r *domain.Reservation) error {
	if r == nil {
		return domain.ErrNilReservation
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.Commit(ctx, s.db, r.UserID, r.Kind, r.Window); err != nil {
		return err
	}
	s.quotaMetrics.Observe(string(r.Kind), obsmetrics.QuotaOutcomeCommit)
	return nil
}

// Release gives a reservation back without touching usage. It runs even when
// the request context is already cancelled.
func (s *Service) Release(ctx context.Context, r *domain.Reservation) error {
	if r == nil {
		return domain.ErrNilReservation
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.Release(ctx, s.db, r.UserID, r.Kind, r.Window); err != nil {
		return err
	}
	s.quotaMetrics.Observe(string(r.Kind), obsmetrics.QuotaOutcomeReleased)
	return nil
}

func (s *Service) Guard(ctx context.Context, userID snowflake.ID, kind domain.Kind, fn func(ctx context.Context) error) error {
	decision, reservation, err := s.CheckAndReserve(ctx, userID, kind)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &domain.ExceededError{
			Kind:          kind,
			Limit:         decision.Limit,
			NextResetDate: decision.NextResetDate,
		}
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		if releaseErr := s.Release(ctx, reservation); releaseErr != nil {
			s.log.Warn("failed to release quota reservation",
				zap.String("user_id", userID.String()),
				zap.String("kind", string(kind)),
				zap.Error(releaseErr),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}

	settled = true
	if commitErr := s.RecordSuccess(ctx, reservation); commitErr != nil {
		// The operation already happened; the stale reservation is dropped at
		// the next monthly reset.
		s.log.Error("failed to record quota usage",
			zap.String("user_id", userID.String()),
			zap.String("kind", string(kind)),
			zap.Error(commitErr),
		)
	}
	return nil
}

func (s *Service) GetStatus(ctx context.Context, userID snowflake.ID, kind domain.Kind) (domain.Status, error) {
	if !kind.Valid() {
		return domain.Status{}, domain.ErrInvalidKind
	}

	now := s.clock.Now().UTC()
	if err := s.resetIfStale(ctx, userID, kind, domain.MonthStart(now), now); err != nil {
		return domain.Status{}, err
	}

	ledger, err := s.repo.FindLedger(ctx, s.db, userID, kind)
	if err != nil {
		return domain.Status{}, err
	}
	if ledger == nil {
		return domain.Status{}, domain.ErrLedgerNotFound
	}

	status := domain.StatusOf(*ledger, now)
	s.quotaMetrics.ObserveUsage(string(kind), status.UsagePercentage)
	return status, nil
}

func (s *Service) AddToLimit(ctx context.Context, userID snowflake.ID, kind domain.Kind, delta int) error {
	return s.AddToLimitTx(ctx, s.db, userID, kind, delta)
}

func (s *Service) AddToLimitTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, kind domain.Kind, delta int) error {
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}
	if delta <= 0 {
		return domain.ErrInvalidDelta
	}
	if tx == nil {
		tx = s.db
	}

	updated, err := s.repo.AddToLimit(ctx, tx, userID, kind, delta)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrLedgerNotFound
	}

	s.quotaMetrics.AddLimit(string(kind), "adjustment", delta)
	s.log.Info("monthly limit increased",
		zap.String("user_id", userID.String()),
		zap.String("kind", string(kind)),
		zap.Int("delta", delta),
	)
	return nil
}

func (s *Service) resetIfStale(ctx context.Context, userID snowflake.ID, kind domain.Kind, monthStart, now time.Time) error {
	reset, err := s.repo.ResetIfStale(ctx, s.db, userID, kind, monthStart, now)
	if err != nil {
		return err
	}
	if reset {
		s.quotaMetrics.Observe(string(kind), obsmetrics.QuotaOutcomeReset)
		s.log.Debug("monthly usage reset",
			zap.String("user_id", userID.String()),
			zap.String("kind", string(kind)),
		)
	}
	return nil
}
