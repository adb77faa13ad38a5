package common

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// NotReadyError is returned when contract metadata did not load in time.
type NotReadyError struct {
	Waited time.Duration
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("contract registry not ready after %v", e.Waited)
}

// ContractRegistry caches contract metadata. It is written once per symbol
// while contracts load and read afterwards; readiness only moves forward.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]Contract

	ready     chan struct{}
	readyOnce sync.Once
}

// NewContractRegistry creates an empty, not-ready registry.
func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{
		contracts: make(map[string]Contract),
		ready:     make(chan struct{}),
	}
}

// Put stores a contract. The first write for a symbol wins; it reports
// whether the contract was inserted.
func (r *ContractRegistry) Put(c Contract) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contracts[c.Symbol]; ok {
		return false
	}
	r.contracts[c.Symbol] = c
	return true
}

// Get returns the contract for symbol.
func (r *ContractRegistry) Get(symbol string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[symbol]
	return c, ok
}

// All returns the contracts sorted by symbol.
func (r *ContractRegistry) All() []Contract {
	r.mu.RLock()
	out := make([]Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of loaded contracts.
func (r *ContractRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}

// MarkReady flags the registry as fully loaded. Safe to call repeatedly.
func (r *ContractRegistry) MarkReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// Ready reports whether MarkReady was called.
func (r *ContractRegistry) Ready() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the registry is ready.
func (r *ContractRegistry) Done() <-chan struct{} {
	return r.ready
}

// WaitReady blocks until the registry is ready, ctx ends or timeout passes.
// A non-positive timeout waits for ctx only.
func (r *ContractRegistry) WaitReady(ctx context.Context, timeout time.Duration) error {
	if r.Ready() {
		return nil
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-r.ready:
		return nil
	case <-expired:
		return &NotReadyError{Waited: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MinVolume returns the minimum volume step of symbol, 0 if unknown.
func (r *ContractRegistry) MinVolume(symbol string) float64 {
	c, ok := r.Get(symbol)
	if !ok {
		return 0
	}
	return c.MinVolume
}
