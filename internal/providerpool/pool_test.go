package providerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrison/conductor/internal/models"
)

type fakeInvoker struct {
	name    string
	results []fakeResult
	calls   int
}

type fakeResult struct {
	parsed *models.ParseResult
	err    error
}

func (f *fakeInvoker) Name() string { return f.name }

func (f *fakeInvoker) Invoke(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (*models.ParseResult, error) {
	var r fakeResult
	if f.calls < len(f.results) {
		r = f.results[f.calls]
	} else {
		r = f.results[len(f.results)-1]
	}
	f.calls++
	return r.parsed, r.err
}

func success() fakeResult {
	return fakeResult{parsed: &models.ParseResult{Success: true, Response: "ok"}}
}

func failure(msg string) fakeResult {
	return fakeResult{err: errors.New(msg)}
}

func TestExecuteWithFallbackUsesFirstSuccess(t *testing.T) {
	a := &fakeInvoker{name: "a", results: []fakeResult{success()}}
	b := &fakeInvoker{name: "b", results: []fakeResult{success()}}

	p := New(context.Background(), []Invoker{a, b}, nil)
	name, attempted, parsed, err := p.ExecuteWithFallback(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if name != "a" || !parsed.Success {
		t.Fatalf("expected provider a to succeed, got %s/%v", name, parsed)
	}
	if len(attempted) != 1 || attempted[0] != "a" {
		t.Fatalf("attempted = %v, want [a]", attempted)
	}
	if b.calls != 0 {
		t.Fatalf("expected provider b to be untouched, got %d calls", b.calls)
	}
}

func TestExecuteWithFallbackFallsThrough(t *testing.T) {
	a := &fakeInvoker{name: "a", results: []fakeResult{failure("provider unavailable")}}
	b := &fakeInvoker{name: "b", results: []fakeResult{success()}}

	p := New(context.Background(), []Invoker{a, b}, nil)
	name, attempted, _, err := p.ExecuteWithFallback(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if name != "b" {
		t.Fatalf("expected fallback to provider b, got %s", name)
	}
	if len(attempted) != 2 || attempted[0] != "a" || attempted[1] != "b" {
		t.Fatalf("attempted = %v, want [a b]", attempted)
	}

	stats, ok := p.Stats("a")
	if !ok || stats.ConsecutiveFailures != 1 {
		t.Fatalf("expected provider a to record one consecutive failure, got %+v", stats)
	}
}

func TestCircuitOpensAfterThreeFailures(t *testing.T) {
	a := &fakeInvoker{name: "a", results: []fakeResult{failure("x"), failure("x"), failure("x"), success()}}
	p := New(context.Background(), []Invoker{a}, nil)

	for i := 0; i < 3; i++ {
		_, _, _, err := p.ExecuteWithCircuitBreaker(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
		if err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}

	stats, _ := p.Stats("a")
	if stats.Circuit != models.CircuitOpen {
		t.Fatalf("expected circuit open after 3 consecutive failures, got %v", stats.Circuit)
	}

	_, _, _, err := p.ExecuteWithCircuitBreaker(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	var allFailed *AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllProvidersFailedError with circuit open, got %v", err)
	}
	if a.calls != 3 {
		t.Fatalf("expected no subprocess spawn while circuit is open, calls = %d", a.calls)
	}
}

func TestCircuitHalfOpensAfterCooldown(t *testing.T) {
	a := &fakeInvoker{name: "a", results: []fakeResult{failure("x"), failure("x"), failure("x"), success()}}
	p := New(context.Background(), []Invoker{a}, nil)

	now := time.Now()
	p.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p.ExecuteWithCircuitBreaker(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	}

	p.clock = func() time.Time { return now.Add(6 * time.Minute) }

	name, _, parsed, err := p.ExecuteWithCircuitBreaker(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	if err != nil {
		t.Fatalf("expected half-open retry to succeed, got %v", err)
	}
	if name != "a" || !parsed.Success {
		t.Fatalf("expected provider a to succeed in half-open, got %s/%v", name, parsed)
	}

	stats, _ := p.Stats("a")
	if stats.Circuit != models.CircuitClosed {
		t.Fatalf("expected circuit to close after half-open success, got %v", stats.Circuit)
	}
}

func TestExecuteWithBestProviderRanksByRecordedSuccessRate(t *testing.T) {
	// a alternates fail/success so its circuit never opens (never 3
	// consecutive failures) but its overall success rate stays low; b
	// is only invoked on fallback, and always succeeds.
	a := &fakeInvoker{name: "a", results: []fakeResult{
		failure("x"), success(), failure("x"), success(), failure("x"), success(),
	}}
	b := &fakeInvoker{name: "b", results: []fakeResult{success(), success(), success()}}

	p := New(context.Background(), []Invoker{a, b}, nil)

	// Warm up both providers past the minimum-attempts floor without
	// relying on ranking (plain fallback visits in configured order).
	for i := 0; i < 6; i++ {
		p.ExecuteWithFallback(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	}

	name, _, _, err := p.ExecuteWithBestProvider(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	if err != nil {
		t.Fatalf("ExecuteWithBestProvider() error = %v", err)
	}
	if name != "b" {
		t.Fatalf("expected provider b (higher success rate) to be tried first, got %s", name)
	}
}

func TestAllProvidersFailingHealthSkipsSubprocessSpawn(t *testing.T) {
	a := &fakeInvoker{name: "a", results: []fakeResult{success()}}
	p := New(context.Background(), []Invoker{a}, func(Invoker) bool { return false })

	_, _, _, err := p.ExecuteWithFallback(context.Background(), models.Task{ID: "t1"}, "/proj", time.Second)
	var allFailed *AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if a.calls != 0 {
		t.Fatalf("expected no subprocess spawn for a provider failing health, calls = %d", a.calls)
	}
}
