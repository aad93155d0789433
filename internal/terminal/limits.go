package terminal

import (
	"sync"
	"time"
)

// Input limits applied by transports before data reaches a session.
const (
	// MaxInputMessageSize is the largest single input message accepted from
	// the client. A multiline editor submission counts as one message.
	MaxInputMessageSize = 64 * 1024 // 64 KB

	// InputRateLimit is the sustained number of input messages per second.
	InputRateLimit = 100
	// InputRateBurst is the burst allowance, enough for a paste.
	InputRateBurst = 200
)

// InputLimiter is a token bucket limiting client input messages.
type InputLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewInputLimiter creates a limiter with the given rate (messages/sec) and burst.
func NewInputLimiter(rate float64, burst int) *InputLimiter {
	return &InputLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes one token and reports whether the message may pass.
func (l *InputLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.refillRate
	l.lastRefill = now
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
