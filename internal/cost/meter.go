// Package cost accumulates estimated API spend across the calls of one
// moderation run. The meter rides on the context so the vision layer can
// attribute spend without threading a collaborator through every call.
package cost

import (
	"context"
	"sync"
)

// Meter sums estimated spend in USD. Safe for concurrent use; gallery
// chunks report from multiple goroutines.
type Meter struct {
	mu    sync.Mutex
	total float64
	calls int
}

// Add records one call's estimated cost.
func (m *Meter) Add(usd float64) {
	m.mu.Lock()
	m.total += usd
	m.calls++
	m.mu.Unlock()
}

// Total returns the accumulated spend in USD.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Calls returns how many billed calls were recorded.
func (m *Meter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type ctxKey struct{}

// WithMeter attaches a fresh meter to the context and returns both.
func WithMeter(ctx context.Context) (context.Context, *Meter) {
	m := &Meter{}
	return context.WithValue(ctx, ctxKey{}, m), m
}

// FromContext returns the context's meter, or nil when none is attached.
func FromContext(ctx context.Context) *Meter {
	m, _ := ctx.Value(ctxKey{}).(*Meter)
	return m
}

// Add records spend on the context's meter, if any.
func Add(ctx context.Context, usd float64) {
	if m := FromContext(ctx); m != nil {
		m.Add(usd)
	}
}
