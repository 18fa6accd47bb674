package obs

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DenialSnapshot is a point-in-time copy of the authorization denial counters.
type DenialSnapshot struct {
	Total    uint64            `json:"totalDenials"`
	ByAction map[string]uint64 `json:"byAction"`
}

// Denials counts authorization denials for the lifetime of the process.
// It is safe for concurrent use and never fails the caller.
type Denials struct {
	// mu guards total and byAction together so a snapshot is always consistent.
	mu       sync.Mutex
	total    uint64
	byAction map[string]uint64

	counter *prometheus.CounterVec
}

// NewDenials builds a collector and registers its counter with reg. A nil
// registerer keeps the counter private, which tests rely on.
func NewDenials(reg prometheus.Registerer) (*Denials, error) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkpost_authz_denials_total",
			Help: "Authorization denials by action and role.",
		},
		[]string{"action", "role"},
	)
	if reg != nil {
		if err := reg.Register(counter); err != nil {
			return nil, err
		}
	}
	return &Denials{byAction: make(map[string]uint64), counter: counter}, nil
}

// RecordDenial increments the total and per-action counters and logs a warning.
func (d *Denials) RecordDenial(ctx context.Context, action, role string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.total++
	d.byAction[action]++
	d.mu.Unlock()
	d.counter.WithLabelValues(action, role).Inc()

	LoggerFrom(ctx).Warn("authorization_denied", "action", action, "role", role)
}

// Snapshot returns a copy of the counters. Mutating the result does not affect the collector.
func (d *Denials) Snapshot() DenialSnapshot {
	if d == nil {
		return DenialSnapshot{ByAction: map[string]uint64{}}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	byAction := make(map[string]uint64, len(d.byAction))
	for k, v := range d.byAction {
		byAction[k] = v
	}
	return DenialSnapshot{Total: d.total, ByAction: byAction}
}

// Counter exposes the underlying Prometheus vector.
func (d *Denials) Counter() *prometheus.CounterVec { return d.counter }
