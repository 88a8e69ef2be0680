package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError marks a provider refusal to accept more work.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit"
	}
	return e.Message
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker opens after a run of rate-limit errors and stays open
// for the cooldown. Errors other than rate limits never trip it.
type CircuitBreaker struct {
	mu           sync.Mutex
	strikes      int
	threshold    int
	cooldown     time.Duration
	blockedUntil time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !time.Now().Before(c.blockedUntil)
}

// OnSuccess closes the breaker and clears the strike count.
func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.strikes = 0
	c.blockedUntil = time.Time{}
	c.mu.Unlock()
}

// OnError counts rate-limit errors toward the threshold.
func (c *CircuitBreaker) OnError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	c.strikes++
	if c.strikes >= c.threshold {
		c.blockedUntil = time.Now().Add(c.cooldown)
	}
	c.mu.Unlock()
}
