// Package resolve turns reachable addresses into display names.
//
// Resolution runs a cascade of stages, each under its own timeout, and the
// first non-empty name wins. A process-wide weighted semaphore caps how many
// resolutions run at once; waiters are admitted in arrival order. Resolve
// never fails outward: every error or timeout simply means "no name".
package resolve

import (
	"context"
	"net/netip"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
)

const (
	DefaultMaxConcurrent   = 2
	DefaultDNSTimeout      = 2 * time.Second
	DefaultOSLookupTimeout = 10 * time.Second

	// DisableOSLookupEnv turns off the OS stage when set to any value.
	DisableOSLookupEnv = "NO_OS_LOOKUP"
)

// Config controls the cascade.
type Config struct {
	MaxConcurrent   int
	DNSTimeout      time.Duration
	OSLookupTimeout time.Duration
	DisableOSLookup bool
	Nameservers     []string
}

// Step pairs a stage with the timeout it runs under.
type Step struct {
	Stage   Stage
	Timeout time.Duration
}

// Resolver runs the cascade under a concurrency cap.
type Resolver struct {
	sem        *semaphore.Weighted
	steps      []Step
	osDisabled bool
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger
}

// New builds the PTR then OS cascade described by cfg.
func New(cfg Config, m *metrics.PrometheusMetrics) *Resolver {
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = DefaultDNSTimeout
	}
	if cfg.OSLookupTimeout <= 0 {
		cfg.OSLookupTimeout = DefaultOSLookupTimeout
	}

	steps := []Step{{Stage: NewPTRStage(cfg.Nameservers), Timeout: cfg.DNSTimeout}}
	disabled := cfg.DisableOSLookup || os.Getenv(DisableOSLookupEnv) != ""
	if !disabled {
		steps = append(steps, Step{Stage: NewOSStage(), Timeout: cfg.OSLookupTimeout})
	}

	r := NewWithSteps(cfg.MaxConcurrent, m, steps...)
	r.osDisabled = disabled
	return r
}

// NewWithSteps builds a resolver over an explicit cascade.
func NewWithSteps(maxConcurrent int, m *metrics.PrometheusMetrics, steps ...Step) *Resolver {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if m == nil {
		m = metrics.GetGlobalMetrics()
	}
	return &Resolver{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		steps:   steps,
		metrics: m,
		logger:  logging.Default().WithComponent("resolver"),
	}
}

// Resolve returns the first name produced by the cascade. ok is false when
// every stage failed, timed out, or ctx ended while waiting for a slot.
func (r *Resolver) Resolve(ctx context.Context, addr netip.Addr) (hostname string, ok bool) {
	queued := time.Now()
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", false
	}
	defer r.sem.Release(1)

	r.metrics.RecordResolverWait(time.Since(queued))
	r.metrics.AddResolverInflight(1)
	defer r.metrics.AddResolverInflight(-1)

	for _, step := range r.steps {
		if name := r.run(ctx, step, addr); name != "" {
			return name, true
		}
	}
	if r.osDisabled {
		r.metrics.IncrementResolutions(metrics.StageOS, metrics.ResolveSkipped)
	}
	return "", false
}

func (r *Resolver) run(ctx context.Context, step Step, addr netip.Addr) string {
	stageCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	// A stage that ignores its context must still not hold the slot past
	// its timeout.
	type answer struct {
		name string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		name, err := step.Stage.Lookup(stageCtx, addr)
		done <- answer{name, err}
	}()

	var (
		name string
		err  error
	)
	select {
	case a := <-done:
		name, err = a.name, a.err
	case <-stageCtx.Done():
		err = stageCtx.Err()
	}
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if err != nil || name == "" {
		r.metrics.IncrementResolutions(step.Stage.Name(), metrics.ResolveMiss)
		r.logger.Debug("Hostname lookup failed",
			"address", addr.String(), "stage", step.Stage.Name(), "error", err)
		return ""
	}

	r.metrics.IncrementResolutions(step.Stage.Name(), metrics.ResolveHit)
	return name
}
