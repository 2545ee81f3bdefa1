package engine

import (
	"context"
	"time"

	"github.com/harrison/conductor/internal/models"
	"github.com/harrison/conductor/internal/provider"
)

// ProviderInvoker adapts a *provider.Adapter to the providerpool.Invoker
// contract: render the task's prompt, run the adapter's subprocess, and
// parse the raw result into a ParseResult the Pool can judge.
type ProviderInvoker struct {
	Adapter   *provider.Adapter
	Overrides map[string]string
}

// NewProviderInvoker returns a ProviderInvoker wrapping adapter with no
// per-call parameter overrides.
func NewProviderInvoker(adapter *provider.Adapter) *ProviderInvoker {
	return &ProviderInvoker{Adapter: adapter}
}

// Name returns the provider's configured name.
func (p *ProviderInvoker) Name() string {
	return p.Adapter.Spec.Name
}

// Invoke renders task's prompt, spawns the provider, and parses its
// output.
func (p *ProviderInvoker) Invoke(ctx context.Context, task models.Task, projectPath string, timeout time.Duration) (*models.ParseResult, error) {
	prompt := p.Adapter.Prompt(task, projectPath)
	result, err := p.Adapter.Invoke(ctx, prompt, timeout, p.Overrides)
	if err != nil {
		return nil, err
	}
	return provider.Parse(result), nil
}

// Health reports whether the wrapped provider's CLI responds.
func (p *ProviderInvoker) Health(ctx context.Context) bool {
	return p.Adapter.Health(ctx)
}
