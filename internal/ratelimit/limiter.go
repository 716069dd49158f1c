package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scope string

const (
	ScopeAI     Scope = "ai"
	ScopePublic Scope = "public"
)

const (
	ReasonBurst       = "burst"
	ReasonUnavailable = "limiter_unavailable"
)

// Decision is the outcome of one token request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reason     string
}

type policy struct {
	rate  float64
	burst int
}

type bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Decision, error)
}

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock         `optional:"true"`
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Limiter throttles bursts per scope and subject. It is separate from the
// monthly quota: a denied request never touches the ledger.
type Limiter struct {
	log        *zap.Logger
	remote     bucket
	local      *LocalBucket
	policies   map[Scope]policy
	obsMetrics *obsmetrics.Metrics
}

func NewLimiter(p Params) *Limiter {
	limitCfg := p.Cfg.RateLimit
	policies := map[Scope]policy{
		ScopeAI:     {rate: limitCfg.AIRate, burst: limitCfg.AIBurst},
		ScopePublic: {rate: limitCfg.PublicRate, burst: limitCfg.PublicBurst},
	}

	var ttl time.Duration
	for _, pol := range policies {
		if t := bucketTTL(pol.rate, pol.burst); t > ttl {
			ttl = t
		}
	}

	l := &Limiter{
		log:        p.Log.Named("ratelimit"),
		local:      NewLocalBucket(p.Clock, defaultLocalBuckets, ttl),
		policies:   policies,
		obsMetrics: p.ObsMetrics,
	}
	if limitCfg.Enabled && p.Redis != nil {
		l.remote = NewTokenBucket(p.Redis)
	} else if limitCfg.Enabled {
		l.log.Warn("rate limiting enabled without redis, using in-process buckets")
	}
	return l
}

// Allow takes one token for subject under scope. Redis errors degrade to the
// in-process bucket rather than failing the request.
func (l *Limiter) Allow(ctx context.Context, scope Scope, subject string) Decision {
	pol, ok := l.policies[scope]
	if !ok || pol.rate <= 0 || pol.burst <= 0 {
		return Decision{Allowed: true}
	}
	key := fmt.Sprintf("ratelimit:%s:%s", scope, strings.TrimSpace(subject))

	var (
		decision Decision
		err      error
	)
	if l.remote != nil {
		decision, err = l.remote.Allow(ctx, key, pol.rate, pol.burst)
		if err != nil {
			l.log.Warn("redis rate limit failed, falling back", zap.String("scope", string(scope)), zap.Error(err))
		}
	}
	if l.remote == nil || err != nil {
		decision, err = l.local.Allow(ctx, key, pol.rate, pol.burst)
		if err != nil {
			l.log.Error("local rate limit failed", zap.String("scope", string(scope)), zap.Error(err))
			return Decision{Allowed: true, Reason: ReasonUnavailable}
		}
	}

	if decision.Allowed {
		l.obsMetrics.RecordRateLimitAllowed(ctx, string(scope))
	} else {
		decision.Reason = ReasonBurst
		l.obsMetrics.RecordRateLimitDenied(ctx, string(scope), ReasonBurst)
	}
	return decision
}
