// Package providerpool orders provider adapters, tracks per-provider
// success/failure statistics, enforces a circuit breaker, and exposes
// "try in order until one succeeds" execution strategies.
package providerpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrison/conductor/internal/models"
)

const (
	consecutiveFailureThreshold = 3
	circuitCooldown             = 5 * time.Minute
	minAttemptsForRanking       = 3
)

// Invoker is the subset of the Provider Adapter the Pool depends on.
// Implemented by *engine.ProviderInvoker (wrapping a *provider.Adapter)
// in production, faked in tests.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (*models.ParseResult, error)
}

// AllProvidersFailedError is returned when every provider in the pool
// either has an open circuit or failed the invocation.
type AllProvidersFailedError struct {
	LastErr       error
	ProviderErrs  []error
	ProviderNames []string
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all %d providers failed, last error: %v", len(e.ProviderNames), e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.LastErr }

type entry struct {
	invoker Invoker
	stats   models.ProviderStats
}

// Pool is the ordered collection of providers used for fallback. It
// is not safe for concurrent use by multiple callers; a single Pool
// instance serialises all counter and circuit mutations internally,
// but only one executeWith* call is expected in flight at a time, per
// the single-logical-execution-thread scheduling model.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	clock   func() time.Time
}

// New returns a Pool iterating providers in the given order. Health is
// probed immediately; providers that fail the health check start with
// an open circuit and no cooldown, requiring a manual reset.
func New(ctx context.Context, invokers []Invoker, healthCheck func(Invoker) bool) *Pool {
	p := &Pool{clock: time.Now}
	for _, inv := range invokers {
		e := &entry{invoker: inv}
		if healthCheck != nil && !healthCheck(inv) {
			e.stats.Circuit = models.CircuitOpen
			e.stats.LastFailureAt = time.Time{} // never expires until reset
		}
		p.entries = append(p.entries, e)
	}
	return p
}

// ResetCircuit manually closes a provider's circuit, clearing its
// consecutive-failure count. Used to recover from a failed health
// check without waiting for a cooldown that was never started.
func (p *Pool) ResetCircuit(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.invoker.Name() == name {
			e.stats.Circuit = models.CircuitClosed
			e.stats.ConsecutiveFailures = 0
		}
	}
}

// Stats returns a snapshot of a provider's counters.
func (p *Pool) Stats(name string) (models.ProviderStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.invoker.Name() == name {
			return e.stats, true
		}
	}
	return models.ProviderStats{}, false
}

func (p *Pool) availableEntries(order []*entry) []*entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	var available []*entry
	for _, e := range order {
		if e.stats.Circuit == models.CircuitOpen && !e.stats.LastFailureAt.IsZero() && now.Sub(e.stats.LastFailureAt) >= circuitCooldown {
			e.stats.Circuit = models.CircuitHalfOpen
		}
		if e.stats.Circuit == models.CircuitOpen {
			continue
		}
		available = append(available, e)
	}
	return available
}

func (p *Pool) recordResult(e *entry, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e.stats.Attempts++
	if success {
		e.stats.Successes++
		e.stats.ConsecutiveFailures = 0
		e.stats.Circuit = models.CircuitClosed
		return
	}
	e.stats.Failures++
	e.stats.ConsecutiveFailures++
	e.stats.LastFailureAt = p.clock()
	if e.stats.Circuit == models.CircuitHalfOpen || e.stats.ConsecutiveFailures >= consecutiveFailureThreshold {
		e.stats.Circuit = models.CircuitOpen
	}
}

// ExecuteWithFallback iterates providers in configured order, skipping
// any whose circuit is open, invoking each until one succeeds. The
// second return value is the ordered list of every provider name
// attempted during this call (including the winner, if any), so a
// caller can detect a within-call fallback even though only the
// winning (or empty) name is returned as the first value.
func (p *Pool) ExecuteWithFallback(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (string, []string, *models.ParseResult, error) {
	return p.execute(ctx, task, projectPath, timeout, p.entries)
}

// ExecuteWithCircuitBreaker behaves like ExecuteWithFallback but is the
// entry point that exercises the open -> half-open -> closed/open state
// machine; the breaker bookkeeping itself runs on every call regardless
// of which entry point is used, so this is an alias kept for the
// vocabulary the spec assigns it.
func (p *Pool) ExecuteWithCircuitBreaker(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (string, []string, *models.ParseResult, error) {
	return p.ExecuteWithFallback(ctx, task, projectPath, timeout)
}

// ExecuteWithBestProvider reorders providers by descending success
// rate before proceeding as in ExecuteWithFallback. Providers with
// fewer than minAttemptsForRanking attempts are treated as having
// insufficient data and retain configured order, sorted ahead of any
// provider with enough data (exploratory-first).
func (p *Pool) ExecuteWithBestProvider(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (string, []string, *models.ParseResult, error) {
	ranked := p.rankedEntries()
	return p.execute(ctx, task, projectPath, timeout, ranked)
}

func (p *Pool) rankedEntries() []*entry {
	p.mu.Lock()
	ranked := make([]*entry, len(p.entries))
	copy(ranked, p.entries)
	p.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].stats, ranked[j].stats
		aReady := a.Attempts >= minAttemptsForRanking
		bReady := b.Attempts >= minAttemptsForRanking
		if aReady != bReady {
			// Exploratory (insufficient-data) providers sort first.
			return !aReady
		}
		if !aReady {
			return false // preserve configured order among exploratory providers
		}
		return a.SuccessRate() > b.SuccessRate()
	})
	return ranked
}

func (p *Pool) execute(ctx context.Context, task models.Task, projectPath string, timeout time.Duration, order []*entry) (string, []string, *models.ParseResult, error) {
	candidates := p.availableEntries(order)
	if len(candidates) == 0 {
		return "", nil, nil, &AllProvidersFailedError{LastErr: fmt.Errorf("no provider available: all circuits open")}
	}

	var lastErr error
	var providerErrs []error
	var names []string

	for _, e := range candidates {
		names = append(names, e.invoker.Name())
		parsed, err := e.invoker.Invoke(ctx, task, projectPath, timeout)
		if err == nil && parsed != nil && parsed.Success {
			p.recordResult(e, true)
			return e.invoker.Name(), names, parsed, nil
		}
		p.recordResult(e, false)
		if err == nil {
			err = fmt.Errorf("provider %s returned unsuccessful result: %s", e.invoker.Name(), parsed.RawError)
		}
		lastErr = err
		providerErrs = append(providerErrs, err)
	}

	return "", names, nil, &AllProvidersFailedError{LastErr: lastErr, ProviderErrs: providerErrs, ProviderNames: names}
}
