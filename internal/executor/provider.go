// Package executor runs single plan steps against capability providers,
// applying per-step timeouts and retry policies.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownCapability indicates a step referenced a capability no
	// provider was registered for. A configuration error, never retried.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrProviderFailure wraps transient provider errors recorded in
	// step outcomes. Subject to the step's retry policy.
	ErrProviderFailure = errors.New("provider failure")
)

// Provider performs one capability invocation. Implementations must honor
// context cancellation, which carries the per-attempt timeout.
type Provider interface {
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, input json.RawMessage) (string, error)

func (f ProviderFunc) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	return f(ctx, input)
}

// Providers is a registry mapping capability names to providers.
type Providers struct {
	mu    sync.RWMutex
	byCap map[string]Provider
}

// NewProviders creates an empty provider registry.
func NewProviders() *Providers {
	return &Providers{byCap: make(map[string]Provider)}
}

// Register binds a provider to a capability name, replacing any previous
// binding.
func (p *Providers) Register(capability string, prov Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byCap[capability] = prov
}

// Lookup returns the provider for a capability.
func (p *Providers) Lookup(capability string) (Provider, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prov, ok := p.byCap[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	return prov, nil
}

// Capabilities returns the registered capability names, sorted.
func (p *Providers) Capabilities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.byCap))
	for name := range p.byCap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
