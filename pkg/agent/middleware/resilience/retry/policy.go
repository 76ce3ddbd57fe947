// Package retry provides bounded retry with exponential backoff for upstream calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`     // Attempts including the first
	InitialDelay  time.Duration `yaml:"initial_delay" json:"initial_delay"`   // Delay before the second attempt
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`           // Ceiling for any single delay
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"` // Multiplier per attempt
	Jitter        bool          `yaml:"jitter" json:"jitter"`                 // ±10% randomization
}

// DefaultConfig is two attempts with a half-second initial wait capped at two seconds.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   2,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        false,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// retryable is implemented by errors that know whether they are transient.
type retryable interface {
	IsRetryable() bool
}

// ShouldRetry is the default classifier. Only transport-level failures retry.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Per-request timeouts wrap DeadlineExceeded while the caller's context is still live.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	if strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") {
		return true
	}

	return false
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Config     Config
	Classifier Classifier
	// OnRetry, when set, is called before sleeping ahead of each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the wait before the given attempt (1-based).
// Attempt 1 never waits; attempt n waits InitialDelay*BackoffFactor^(n-2), capped at MaxDelay.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (rand.Float64()*2 - 1)) //nolint:gosec // jitter only
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
