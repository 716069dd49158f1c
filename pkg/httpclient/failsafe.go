// Package httpclient wraps outbound HTTP calls in a failsafe-go retry policy
// and circuit breaker.
package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
)

type Config struct {
	Name string

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// The breaker opens when BreakerFailures of the last BreakerWindow
	// executions failed, and stays open for BreakerDelay.
	BreakerFailures uint
	BreakerWindow   uint
	BreakerDelay    time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		MaxRetries:      2,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BreakerFailures: 5,
		BreakerWindow:   10,
		BreakerDelay:    15 * time.Second,
	}
}

func normalize(cfg Config) Config {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.BreakerWindow == 0 {
		cfg.BreakerWindow = def.BreakerWindow
	}
	if cfg.BreakerFailures == 0 || cfg.BreakerFailures > cfg.BreakerWindow {
		cfg.BreakerFailures = min(def.BreakerFailures, cfg.BreakerWindow)
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = def.BreakerDelay
	}
	return cfg
}

// ShouldRetry retries transport errors, 429 and 5xx responses.
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func isFailure(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

type Executor struct {
	name     string
	executor failsafe.Executor[*http.Response]
	breaker  circuitbreaker.CircuitBreaker[*http.Response]
}

//nolint:bodyclose // *http.Response is a type parameter here
func NewExecutor(cfg Config, log *zap.Logger) *Executor {
	cfg = normalize(cfg)
	if log == nil {
		log = zap.NewNop()
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(ShouldRetry).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			drain(e.LastResult())
		}).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(isFailure).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerWindow).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			log.Warn("circuit breaker state change",
				zap.String("circuit_breaker", cfg.Name),
				zap.String("from_state", stateName(e.OldState)),
				zap.String("to_state", stateName(e.NewState)),
			)
		}).
		Build()

	return &Executor{
		name:     cfg.Name,
		executor: failsafe.With[*http.Response](retry, breaker),
		breaker:  breaker,
	}
}

// Do sends the request built by newReq. newReq runs once per attempt so
// request bodies can be replayed.
func (e *Executor) Do(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return e.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		return client.Do(req)
	})
}

func (e *Executor) IsOpen() bool {
	return e.breaker.IsOpen()
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
