// Package health serves the /livez and /readyz probes of the store API.
//
// Checks run in background goroutines at a fixed interval and the endpoints
// only report their last results. A check turns unhealthy after a number of
// consecutive failures and healthy again after a number of consecutive
// passes. Optional checks are reported but never fail a probe; the probe
// status becomes "degraded" instead.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check belongs to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Probe statuses.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

type check struct {
	name         string
	kind         Kind
	timeout      time.Duration
	fn           CheckFunc
	failAfter    int
	recoverAfter int
	optional     bool

	mu       sync.Mutex
	healthy  bool
	lastErr  error
	fails    int
	passes   int
	lastRun  time.Time
	lastTook time.Duration
}

func (c *check) run(ctx context.Context, now func() time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := now()
	err := c.fn(ctx)
	took := now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr, c.lastRun, c.lastTook = err, start, took
	if err != nil {
		c.passes = 0
		c.fails++
		if c.fails >= c.failAfter {
			c.healthy = false
		}
		return
	}
	c.fails = 0
	c.passes++
	if c.passes >= c.recoverAfter {
		c.healthy = true
	}
}

func (c *check) result() CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := CheckResult{
		Healthy:  c.healthy,
		Optional: c.optional,
		Failures: c.fails,
	}
	if !c.lastRun.IsZero() {
		t := c.lastRun
		r.CheckedAt = &t
		r.DurationMS = c.lastTook.Milliseconds()
	}
	if c.lastErr != nil {
		r.Error = c.lastErr.Error()
	}
	return r
}

// CheckOption tunes a registered check.
type CheckOption func(c *check)

// WithFailureThreshold sets how many consecutive failures turn a check
// unhealthy. Defaults to 3.
func WithFailureThreshold(n int) CheckOption {
	return func(c *check) {
		if n > 0 {
			c.failAfter = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive passes turn a check healthy
// again. Defaults to 1.
func WithSuccessThreshold(n int) CheckOption {
	return func(c *check) {
		if n > 0 {
			c.recoverAfter = n
		}
	}
}

// Optional marks a check whose failure degrades the probe without failing it.
func Optional() CheckOption {
	return func(c *check) { c.optional = true }
}

// Health owns the registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool
	now   func() time.Time

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that is not ready. Call SetReady(true) once the
// service has finished initialization.
func New() *Health {
	return &Health{now: time.Now}
}

// AddLivenessCheck registers a check of the process itself.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(Liveness, name, timeout, fn, opts)
}

// AddReadinessCheck registers a check of a dependency needed to serve
// traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(Readiness, name, timeout, fn, opts)
}

func (h *Health) add(kind Kind, name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) {
	c := &check{
		name:         name,
		kind:         kind,
		timeout:      timeout,
		fn:           fn,
		failAfter:    defaultFailureThreshold,
		recoverAfter: defaultSuccessThreshold,
		// Healthy until proven otherwise.
		healthy: true,
	}
	for _, o := range opts {
		o(c)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Start runs every registered check once immediately and then every
// interval until Stop is called or ctx is done. Calling Start again while
// running is a no-op.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)

	for _, c := range h.checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.loop(ctx, c, interval)
		}()
	}
}

func (h *Health) loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx, h.now)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx, h.now)
		}
	}
}

// Stop cancels the check goroutines and waits for them to exit. It is safe
// to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
}

// SetReady sets the manual readiness flag: true after initialization, false
// when draining before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and no required
// readiness check is failing.
func (h *Health) IsReady() bool {
	return h.ready.Load() && h.Report(Readiness).Status != StatusUnhealthy
}

// CheckResult is the last known state of one check.
type CheckResult struct {
	Healthy    bool       `json:"healthy"`
	Optional   bool       `json:"optional,omitempty"`
	Error      string     `json:"error,omitempty"`
	Failures   int        `json:"consecutive_failures,omitempty"`
	CheckedAt  *time.Time `json:"checked_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// Report is the body of a probe response.
type Report struct {
	Status string                 `json:"status"`
	Reason string                 `json:"reason,omitempty"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Report summarizes the checks of one kind. Readiness also reflects the
// manual readiness flag.
func (h *Health) Report(kind Kind) Report {
	h.mu.RLock()
	checks := make([]*check, 0, len(h.checks))
	for _, c := range h.checks {
		if c.kind == kind {
			checks = append(checks, c)
		}
	}
	h.mu.RUnlock()

	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(checks))}
	for _, c := range checks {
		res := c.result()
		rep.Checks[c.name] = res
		switch {
		case res.Healthy:
		case res.Optional:
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		default:
			rep.Status = StatusUnhealthy
		}
	}
	if kind == Readiness && !h.ready.Load() {
		rep.Status = StatusUnhealthy
		rep.Reason = "service is not ready"
	}
	return rep
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Readiness))
}

// writeReport answers 503 only for unhealthy probes; degraded is still 200.
func writeReport(w http.ResponseWriter, rep Report) {
	status := http.StatusOK
	if rep.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
