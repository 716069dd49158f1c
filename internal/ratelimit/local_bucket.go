package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/invoicely/internal/clock"
)

const defaultLocalBuckets = 10_000

type localState struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// LocalBucket is the single-process token bucket used when redis is not
// configured. Idle buckets fall out of the LRU and come back full.
type LocalBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets *lru.LRU[string, *localState]
}

func NewLocalBucket(clk clock.Clock, size int, ttl time.Duration) *LocalBucket {
	if clk == nil {
		clk = clock.System{}
	}
	if size <= 0 {
		size = defaultLocalBuckets
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LocalBucket{
		clock:   clk,
		buckets: lru.NewLRU[string, *localState](size, nil, ttl),
	}
}

func (b *LocalBucket) Allow(_ context.Context, key string, rate float64, burst int) (Decision, error) {
	if err := validatePolicy(key, rate, burst); err != nil {
		return Decision{}, err
	}

	state := b.state(key, burst)
	state.mu.Lock()
	defer state.mu.Unlock()

	now := b.clock.Now()
	if elapsed := now.Sub(state.last); elapsed > 0 {
		state.tokens = math.Min(float64(burst), state.tokens+elapsed.Seconds()*rate)
	}
	state.last = now

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	return newDecision(allowed, burst, state.tokens, rate), nil
}

func (b *LocalBucket) state(key string, burst int) *localState {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.buckets.Get(key)
	if !ok {
		state = &localState{tokens: float64(burst), last: b.clock.Now()}
	}
	// re-adding pushes the expiry out while the key is in use
	b.buckets.Add(key, state)
	return state
}
