// Package step implements the durable step abstraction:
// wraps a unit of work so that, atop a durable workflow host, replay
// after a crash returns previously completed steps from a cache instead
// of re-invoking them. The LRU-backed cache (same hashicorp/golang-lru/v2
// choice, same hit/miss counters as an expression cache) is applied here
// to step results instead of compiled expressions.
package step

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Runner is the contract both implementations satisfy: step(name, fn) → T.
// Go has no generic methods on non-generic interfaces, so Runner's Invoke
// traffics in `any` and callers use the package-level generic Run helper,
// which type-asserts the result back to T.
type Runner interface {
	// Invoke runs fn under the given step name, returning its result as
	// an `any` (callers type-assert); see the generic Run wrapper below.
	Invoke(name string, fn func() (any, error)) (any, error)
	// Sleep blocks until d has elapsed, or returns immediately if a
	// durable host determines (from replay history) that the sleep
	// already elapsed before the last crash.
	Sleep(name string, d time.Duration)
}

// Run is a type-safe wrapper over Runner.Invoke for callers that know T.
func Run[T any](r Runner, name string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := r.Invoke(name, func() (any, error) {
			v, err := fn()
			return v, err
	})
	if err != nil {
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

// Direct invokes fn exactly once per call and returns or propagates its
// result — no replay semantics. Used when the scheduler is not running
// atop a durable host.
type Direct struct{}

func NewDirect() *Direct { return &Direct{} }

func (d *Direct) Invoke(name string, fn func() (any, error)) (any, error) {
	return fn()
}

func (d *Direct) Sleep(name string, dur time.Duration) {
	time.Sleep(dur)
}

// CacheStats tracks cache hit/miss counters.
type CacheStats struct {
	Hits uint64
	Misses uint64
}

func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type cachedResult struct {
	value any
	err error
}

type cachedSleep struct {
	deadline time.Time
}

// Durable wraps fn invocations in a persisted (here: process-local LRU,
// standing in for a host-backed result store) result cache keyed by step
// name, so replay after a simulated crash returns cached completions
// instead of re-executing fn — the "Durable runner".
type Durable struct {
	mu sync.Mutex
	results *lru.Cache[string, cachedResult]
	sleeps *lru.Cache[string, cachedSleep]
	hits atomic.Uint64
	misses atomic.Uint64
}

// NewDurable creates a durable step runner with a replay cache capped at
// size entries (LRU eviction), generalized from
// nodes.NewFormulaCache.
func NewDurable(size int) *Durable {
	results, err := lru.New[string, cachedResult](size)
	if err != nil {
		panic("step: failed to create result cache: " + err.Error())
	}
	sleeps, err := lru.New[string, cachedSleep](size)
	if err != nil {
		panic("step: failed to create sleep cache: " + err.Error())
	}
	return &Durable{results: results, sleeps: sleeps}
}

func (d *Durable) Invoke(name string, fn func() (any, error)) (any, error) {
	d.mu.Lock()
	if cached, ok := d.results.Get(name); ok {
		d.mu.Unlock()
		d.hits.Add(1)
		return cached.value, cached.err
	}
	d.mu.Unlock()
	d.misses.Add(1)

	v, err := fn()

	d.mu.Lock()
	d.results.Add(name, cachedResult{value: v, err: err})
	d.mu.Unlock()
	return v, err
}

// Sleep returns immediately if, per the replay cache, this named sleep's
// deadline has already elapsed; otherwise it blocks for the remainder and
// records the deadline for future replays.
func (d *Durable) Sleep(name string, dur time.Duration) {
	d.mu.Lock()
	cached, ok := d.sleeps.Get(name)
	d.mu.Unlock()

	if ok {
		if remaining := time.Until(cached.deadline); remaining > 0 {
			time.Sleep(remaining)
		}
		return
	}

	deadline := time.Now().Add(dur)
	d.mu.Lock()
	d.sleeps.Add(name, cachedSleep{deadline: deadline})
	d.mu.Unlock()
	time.Sleep(dur)
}

func (d *Durable) Stats() CacheStats {
	return CacheStats{Hits: d.hits.Load(), Misses: d.misses.Load()}
}

// NodeStepName builds the stable, per-execution step name the scheduler
// uses for a node invocation.
func NodeStepName(nodeID string) string {
	return "run node " + nodeID
}
