package bank

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ticket-gate/internal/status"
)

// Registry holds the configured oracles and answers as its primary one.
type Registry struct {
	mu      sync.RWMutex
	oracles map[Provider]Oracle
	primary Provider
}

func NewRegistry() *Registry {
	return &Registry{oracles: make(map[Provider]Oracle)}
}

// Register adds an oracle. The first one registered becomes primary.
func (r *Registry) Register(o Oracle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.oracles[o.Provider()] = o
	if r.primary == "" {
		r.primary = o.Provider()
	}
}

func (r *Registry) Get(provider Provider) (Oracle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.oracles[provider]
	if !ok {
		return nil, fmt.Errorf("bank: provider %s not registered", provider)
	}
	return o, nil
}

func (r *Registry) Primary() (Oracle, error) {
	r.mu.RLock()
	primary := r.primary
	r.mu.RUnlock()

	if primary == "" {
		return nil, fmt.Errorf("bank: no primary provider configured")
	}
	return r.Get(primary)
}

func (r *Registry) SetPrimary(provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.oracles[provider]; !ok {
		return fmt.Errorf("bank: provider %s not registered", provider)
	}
	r.primary = provider
	return nil
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.oracles))
	for p := range r.oracles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Provider reports the primary's name.
func (r *Registry) Provider() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

func (r *Registry) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	o, err := r.Primary()
	if err != nil {
		return nil, err
	}
	return o.CheckTransaction(ctx, reference)
}
