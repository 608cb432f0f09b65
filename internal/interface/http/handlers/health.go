package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports the state of the ledger and its collaborators.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc probes one dependency. A nil error means healthy.
type HealthCheckFunc func(ctx context.Context) error

// State summarizes a HealthStatus.
type State string

const (
	StateUp       State = "up"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

// HealthStatus is the body of /health/ready.
//
// Ready is false only when a required probe fails. An optional probe (the
// Redis cache) failing leaves the service ready but degraded, since every
// read falls back to the ledger host.
type HealthStatus struct {
	State     State                  `json:"state"`
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type probe struct {
	fn       HealthCheckFunc
	required bool
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker runs every registered probe concurrently, each under
// its own timeout.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	probes    map[string]probe
	startedAt time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a checker with no probes and a 5s
// per-probe timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		probes:    make(map[string]probe),
		startedAt: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout changes the per-probe timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck registers a required probe.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, probe{fn: check, required: true})
}

// AddOptionalCheck registers a probe whose failure degrades but does not
// fail readiness.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(name, probe{fn: check})
}

// RemoveCheck drops a probe.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.probes, name)
}

func (c *CompositeHealthChecker) add(name string, p probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Check runs all probes and aggregates them.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		State:     StateUp,
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(probes)),
		Uptime:    time.Since(c.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, p := range probes {
		g.Go(func() error {
			result := runProbe(ctx, p, timeout)
			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for name, result := range status.Checks {
		if result.Healthy {
			continue
		}
		failed = append(failed, name)
		status.Healthy = false
		if result.Required {
			status.Ready = false
		}
	}
	sort.Strings(failed)

	switch {
	case !status.Ready:
		status.State = StateDown
	case !status.Healthy:
		status.State = StateDegraded
	}
	if len(failed) > 0 {
		status.Message = "failing: " + strings.Join(failed, ", ")
	}
	return status
}

func runProbe(ctx context.Context, p probe, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(ctx)
	result := CheckResult{
		Healthy:  err == nil,
		Required: p.required,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Message = "timed out after " + timeout.String()
	case err != nil:
		result.Message = err.Error()
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBES
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is anything with a connectivity probe: ledger hosts and the Redis
// cache both qualify.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// NoopHealthChecker always reports up. The server uses it when no checker is
// configured.
type NoopHealthChecker struct {
	startedAt time.Time
}

func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{startedAt: time.Now()}
}

func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		State:     StateUp,
		Healthy:   true,
		Ready:     true,
		Uptime:    time.Since(n.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}
