package nodeexec

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/gorax/workflow-core/internal/graph"
)

// RetryConfig controls exponential backoff between node attempts.
type RetryConfig struct {
	MaxRetries int
	InitialBackoff time.Duration
	MaxBackoff time.Duration
	BackoffMultiplier float64
	Jitter bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff: 30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter: true,
	}
}

// RetryConfigFromPolicy converts a graph.RetryPolicy declared on a node
// into the backoff parameters the strategy runs with, falling back to
// DefaultRetryConfig() when the node declares none.
func RetryConfigFromPolicy(p *graph.RetryPolicy) RetryConfig {
	cfg := DefaultRetryConfig()
	if p == nil {
		return cfg
	}
	if p.MaxAttempts > 0 {
		cfg.MaxRetries = p.MaxAttempts - 1
	}
	if p.InitialWait > 0 {
		cfg.InitialBackoff = time.Duration(p.InitialWait) * time.Millisecond
	}
	if p.MaxWait > 0 {
		cfg.MaxBackoff = time.Duration(p.MaxWait) * time.Millisecond
	}
	if p.Multiplier > 0 {
		cfg.BackoffMultiplier = p.Multiplier
	}
	cfg.Jitter = p.Jitter
	return cfg
}

// RetryableOperation is attempted up to config.MaxRetries+1 times.
type RetryableOperation func(ctx context.Context, attempt int) error

// RetryStrategy runs an operation with exponential backoff, retrying
// only errors ClassifyError marks transient.
type RetryStrategy struct {
	config RetryConfig
	logger *slog.Logger
}

func NewRetryStrategy(config RetryConfig, logger *slog.Logger) *RetryStrategy {
	return &RetryStrategy{config: config, logger: logger}
}

func (r *RetryStrategy) Execute(ctx context.Context, operation RetryableOperation) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		err := operation(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("node succeeded after retry", "attempt", attempt, "max_retries", r.config.MaxRetries)
			}
			return nil
		}

		lastErr = err

		if attempt >= r.config.MaxRetries {
			r.logger.Error("node failed after all retries", "attempts", attempt+1, "max_retries", r.config.MaxRetries, "error", err)
			break
		}

		if !ShouldRetry(err, attempt, r.config.MaxRetries) {
			r.logger.Info("node failed with non-retryable error", "attempt", attempt+1, "error", err)
			return err
		}

		backoff := r.calculateBackoff(attempt)
		r.logger.Info("node failed, retrying", "attempt", attempt+1, "max_retries", r.config.MaxRetries, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return lastErr
}

func (r *RetryStrategy) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffMultiplier, float64(attempt))
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	duration := time.Duration(backoff)

	if r.config.Jitter {
		jitter := float64(duration) * 0.25
		variation := (rand.Float64() * 2 * jitter) - jitter
		duration = time.Duration(float64(duration) + variation)
	}

	return duration
}
