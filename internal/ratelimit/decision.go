package ratelimit

import (
	"errors"
	"math"
	"time"
)

func validatePolicy(key string, rate float64, burst int) error {
	switch {
	case key == "":
		return errors.New("rate limiter key is empty")
	case rate <= 0:
		return errors.New("rate limiter rate must be positive")
	case burst <= 0:
		return errors.New("rate limiter burst must be positive")
	}
	return nil
}

// newDecision converts a bucket's remaining tokens into the reply headers.
// A denied request waits until one whole token has refilled.
func newDecision(allowed bool, burst int, tokens, rate float64) Decision {
	d := Decision{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if allowed {
		return d
	}
	wait := time.Duration(math.Ceil((1-tokens)/rate*1000)) * time.Millisecond
	d.RetryAfter = max(wait, time.Millisecond)
	return d
}

// bucketTTL keeps an idle bucket for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := max(math.Ceil(float64(burst)/rate*2), 1)
	return time.Duration(seconds) * time.Second
}
