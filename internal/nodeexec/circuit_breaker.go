package nodeexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker is half-open: too many requests")
)

// CircuitState is the state of a per-node-type circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a breaker.
type CircuitBreakerConfig struct {
	MaxFailures int
	Timeout time.Duration
	MaxRequests int
	FailureThreshold float64
	SlidingWindowSize int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		Timeout: 60 * time.Second,
		MaxRequests: 3,
		FailureThreshold: 0.5,
		SlidingWindowSize: 10,
	}
}

// CircuitBreaker trips per node type once a node implementation starts
// failing consistently, so a broken downstream dependency doesn't keep
// burning retries and credit across every node of that type in the
// level.
type CircuitBreaker struct {
	name string
	config CircuitBreakerConfig
	logger *slog.Logger

	mu sync.RWMutex
	state CircuitState
	failures int
	lastFailTime time.Time
	lastStateTime time.Time
	halfOpenReqs int

	window []bool
	windowIndex int
	windowFilled bool
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		config: config,
		logger: logger,
		state: StateClosed,
		lastStateTime: time.Now(),
		window: make([]bool, config.SlidingWindowSize),
	}
}

func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := operation(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) ExecuteWithResult(ctx context.Context, operation func(context.Context) (any, error)) (any, error) {
	if err := cb.beforeRequest(); err != nil {
		return nil, err
	}
	result, err := operation(ctx)
	cb.afterRequest(err)
	return result, err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(cb.lastStateTime) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 0
			cb.logger.Info("circuit breaker transitioning to half-open",
				"node_type", cb.name,
				"timeout", cb.config.Timeout,
			)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.MaxRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
		return nil

	default:
		return fmt.Errorf("unknown circuit state: %v", cb.state)
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	success := err == nil

	cb.window[cb.windowIndex] = success
	cb.windowIndex = (cb.windowIndex + 1) % len(cb.window)
	if cb.windowIndex == 0 {
		cb.windowFilled = true
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenReqs--
	}

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		if cb.failures > 0 {
			cb.failures = 0
		}

	case StateHalfOpen:
		successCount, totalCount := cb.getWindowStats()
		if totalCount >= cb.config.SlidingWindowSize {
			failureRatio := 1.0 - (float64(successCount) / float64(totalCount))
			if failureRatio < cb.config.FailureThreshold {
				cb.setState(StateClosed)
				cb.failures = 0
				cb.logger.Info("circuit breaker closed after recovery",
					"node_type", cb.name,
					"success_count", successCount,
					"total_count", totalCount,
				)
			}
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.setState(StateOpen)
			cb.logger.Warn("circuit breaker opened due to failures",
				"node_type", cb.name,
				"failures", cb.failures,
				"max_failures", cb.config.MaxFailures,
			)
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("circuit breaker reopened after half-open failure",
			"node_type", cb.name,
		)
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.failures >= cb.config.MaxFailures {
		return true
	}

	if cb.windowFilled || cb.windowIndex >= cb.config.SlidingWindowSize {
		successCount, totalCount := cb.getWindowStats()
		if totalCount > 0 {
			failureRatio := 1.0 - (float64(successCount) / float64(totalCount))
			if failureRatio >= cb.config.FailureThreshold {
				return true
			}
		}
	}

	return false
}

func (cb *CircuitBreaker) getWindowStats() (successCount, totalCount int) {
	limit := len(cb.window)
	if !cb.windowFilled {
		limit = cb.windowIndex
	}

	for i := 0; i < limit; i++ {
		if cb.window[i] {
			successCount++
		}
		totalCount++
	}

	return successCount, totalCount
}

func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state != state {
		oldState := cb.state
		cb.state = state
		cb.lastStateTime = time.Now()
		cb.logger.Info("circuit breaker state changed",
			"node_type", cb.name,
			"old_state", oldState.String(),
			"new_state", state.String(),
		)
	}
}

func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) GetFailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.halfOpenReqs = 0
	cb.windowIndex = 0
	cb.windowFilled = false
	cb.window = make([]bool, cb.config.SlidingWindowSize)

	cb.logger.Info("circuit breaker reset", "node_type", cb.name)
}

// CircuitBreakerRegistry keys breakers by node type ID, so a failing
// Slack integration doesn't throttle unrelated formula nodes.
type CircuitBreakerRegistry struct {
	mu sync.RWMutex
	breakers map[string]*CircuitBreaker
	config CircuitBreakerConfig
	logger *slog.Logger
}

func NewCircuitBreakerRegistry(config CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config: config,
		logger: logger,
	}
}

func (r *CircuitBreakerRegistry) GetOrCreate(nodeType string) *CircuitBreaker {
	r.mu.RLock()
	breaker, exists := r.breakers[nodeType]
	r.mu.RUnlock()

	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if breaker, exists := r.breakers[nodeType]; exists {
		return breaker
	}
	breaker = NewCircuitBreaker(nodeType, r.config, r.logger)
	r.breakers[nodeType] = breaker
	return breaker
}
