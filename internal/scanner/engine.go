// Package scanner runs host discovery scans over an address range.
//
// An Engine owns at most one running scan. Each scan expands its range,
// probes every address from a bounded worker pool, resolves names for live
// hosts and reports progress to a Listener. Cancellation is cooperative:
// in-flight probes finish, but their results are discarded and nothing new
// is dispatched.
package scanner

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/iprange"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/registry"
)

const (
	// DefaultConcurrency is the worker pool size when none is configured.
	DefaultConcurrency = 50
)

// Prober decides whether an address is alive.
type Prober interface {
	Alive(ctx context.Context, addr netip.Addr) bool
}

// HostResolver finds a display name for a live address.
type HostResolver interface {
	Resolve(ctx context.Context, addr netip.Addr) (string, bool)
}

// Config holds engine tuning knobs.
type Config struct {
	// Concurrency caps the number of addresses probed at once.
	Concurrency int
	// RateLimit caps address dispatch per second. Zero disables it.
	RateLimit float64
	// MaxAddresses bounds range expansion. Zero uses the parser default.
	MaxAddresses int
}

// Request selects the addresses to scan: either Range, or StartIP and EndIP.
type Request struct {
	Range   string `json:"range,omitempty"`
	StartIP string `json:"start_ip,omitempty"`
	EndIP   string `json:"end_ip,omitempty"`
}

func (r Request) String() string {
	if r.Range != "" {
		return r.Range
	}
	return r.StartIP + "-" + r.EndIP
}

// Option customizes an Engine.
type Option func(*Engine)

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithRegistry enables known-device annotation and hostname updates.
func WithRegistry(r registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine runs scans one at a time.
type Engine struct {
	config   Config
	parser   iprange.Parser
	prober   Prober
	resolver HostResolver
	registry registry.Registry
	listener Listener
	metrics  *metrics.PrometheusMetrics
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *task
	last    *task

	// emitMu serializes delivery and makes the active check before an
	// initiate or result atomic with the delivery itself.
	emitMu sync.Mutex
}

// New creates an engine. Concurrency defaults to DefaultConcurrency.
func New(cfg Config, prober Prober, resolver HostResolver, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:   cfg,
		parser:   iprange.Parser{MaxAddresses: cfg.MaxAddresses},
		prober:   prober,
		resolver: resolver,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.GetGlobalMetrics()
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.WithComponent("scanner")
	return e
}

// Start begins a scan and returns its ID without waiting for it to finish.
// A running scan is canceled first. An unparsable request emits an error
// event, leaves the engine idle and returns the *errors.RangeError.
func (e *Engine) Start(req Request) (string, error) {
	e.Cancel()

	addrs, err := e.parse(req)
	if err != nil {
		return "", err
	}
	id, _ := e.launch(addrs, true)
	return id, nil
}

// StartIfIdle begins a scan only when none is running. The idle check and
// the start are atomic, so a scan started concurrently is never superseded.
// started is false when another scan was running.
func (e *Engine) StartIfIdle(req Request) (id string, started bool, err error) {
	if e.IsScanning() {
		return "", false, nil
	}

	addrs, err := e.parse(req)
	if err != nil {
		return "", false, err
	}
	id, started = e.launch(addrs, false)
	return id, started, nil
}

func (e *Engine) parse(req Request) (iprange.AddressList, error) {
	var (
		addrs iprange.AddressList
		err   error
	)
	if req.Range != "" {
		addrs, err = e.parser.Parse(req.Range)
	} else {
		addrs, err = e.parser.ParseBounds(req.StartIP, req.EndIP)
	}
	if err != nil {
		e.logger.Warn("Rejected scan request", "request", req.String(), "error", err)
		e.metrics.IncrementScansTotal(metrics.ScanInvalid)
		e.emit(newEvent(EventError, "", ErrorData{Message: err.Error(), Code: errors.GetCode(err)}))
		return nil, err
	}
	return addrs, nil
}

// launch makes a new task current and runs it. With replace unset it gives
// up when a scan is running. The new scan's start waits for the previous
// scan's complete.
func (e *Engine) launch(addrs iprange.AddressList, replace bool) (string, bool) {
	t := newTask(e.ctx, uuid.NewString(), addrs, e.config.RateLimit)
	t.logger = e.logger.WithScanID(t.id)

	e.mu.Lock()
	running := e.current
	if running != nil && !replace {
		e.mu.Unlock()
		t.stop()
		return "", false
	}
	prev := e.last
	e.current = t
	e.last = t
	e.mu.Unlock()

	if running != nil {
		e.deactivate(running)
	}

	go e.run(t, prev)
	return t.id, true
}

// Cancel stops the running scan. It is a no-op when idle. No initiate or
// result event of the canceled scan is delivered after Cancel returns.
func (e *Engine) Cancel() {
	e.mu.Lock()
	t := e.current
	e.mu.Unlock()

	if t != nil {
		e.deactivate(t)
	}
}

// IsScanning reports whether a scan is running.
func (e *Engine) IsScanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// CurrentID returns the ID of the running scan, or "" when idle.
func (e *Engine) CurrentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}

// LastID returns the ID of the most recently started scan, running or not.
func (e *Engine) LastID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return ""
	}
	return e.last.id
}

// Wait blocks until the most recently started scan has emitted its
// complete event, or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	t := e.last
	e.mu.Unlock()

	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the outcomes accumulated by the most recent scan.
func (e *Engine) Results() []Outcome {
	e.mu.Lock()
	t := e.last
	e.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.snapshot()
}

// Shutdown cancels the running scan, aborts its in-flight probes and waits
// for it to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Cancel()
	e.cancel()
	if err := e.Wait(ctx); err != nil {
		return errors.WrapScanError(errors.CodeTimeout, "scan did not stop before the shutdown deadline", err)
	}
	return nil
}

// deactivate marks t inactive and releases workers waiting on the dispatch
// rate limiter.
func (e *Engine) deactivate(t *task) {
	e.emitMu.Lock()
	t.active.Store(false)
	e.emitMu.Unlock()
	t.stop()
}

func (e *Engine) emit(ev Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.deliver(ev)
}

// emitActive delivers ev only while t is active. commit runs under the same
// lock before delivery.
func (e *Engine) emitActive(t *task, ev Event, commit func()) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if !t.active.Load() {
		return false
	}
	if commit != nil {
		commit()
	}
	e.deliver(ev)
	return true
}

func (e *Engine) deliver(ev Event) {
	if e.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event listener panicked", "event", ev.Type, "panic", r)
		}
	}()
	e.listener.OnEvent(ev)
}

func (e *Engine) run(t *task, prev *task) {
	defer close(t.done)
	defer t.stop()

	if prev != nil {
		<-prev.done
	}

	started := time.Now()
	e.metrics.AddActiveScans(1)
	defer e.metrics.AddActiveScans(-1)

	t.logger.Info("Scan started", "total", len(t.addrs))
	e.emit(newEvent(EventStart, t.id, StartData{Total: len(t.addrs), Addresses: t.addrs.Strings()}))

	e.dispatch(t)

	canceled := !t.active.Load()
	fault := t.failure()

	e.mu.Lock()
	if e.current == t {
		e.current = nil
	}
	e.mu.Unlock()

	status := metrics.ScanCompleted
	switch {
	case fault != nil:
		status = metrics.ScanFailed
		t.logger.Error("Scan failed", "error", fault)
		e.emit(newEvent(EventError, t.id, ErrorData{Message: fault.Error(), Code: errors.GetCode(fault)}))
	case canceled:
		status = metrics.ScanCanceled
	}

	results := t.snapshot()
	e.metrics.IncrementScansTotal(status)
	e.metrics.RecordScanDuration(time.Since(started))
	t.logger.Info("Scan finished", "status", status, "results", len(results), "duration", time.Since(started))
	e.emit(newEvent(EventComplete, t.id, CompleteData{Results: results, Canceled: canceled && fault == nil}))
}

// dispatch runs min(concurrency, len(addrs)) workers over the task queue.
func (e *Engine) dispatch(t *task) {
	workers := e.config.Concurrency
	if n := len(t.addrs); n < workers {
		workers = n
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(t)
		}()
	}
	wg.Wait()
}

func (e *Engine) worker(t *task) {
	var addr netip.Addr
	defer func() {
		if r := recover(); r != nil {
			t.fail(errors.NewScanErrorWithTarget(errors.CodeScanFailed,
				fmt.Sprintf("scan aborted: %v", r), addr.String()))
			e.deactivate(t)
		}
	}()

	for {
		if err := t.wait(); err != nil {
			return
		}
		var ok bool
		addr, ok = t.dequeue()
		if !ok {
			return
		}
		e.scanAddress(t, addr)
	}
}

func (e *Engine) scanAddress(t *task, addr netip.Addr) {
	known := e.isKnown(t, addr)
	if !e.emitActive(t, newEvent(EventInitiate, t.id, InitiateData{Address: addr.String(), Known: known}), nil) {
		return
	}

	outcome := Outcome{Address: addr.String(), Status: StatusInactive, Known: known}
	if e.prober.Alive(t.ctx, addr) {
		outcome.Status = StatusActive
		if name, ok := e.resolver.Resolve(t.ctx, addr); ok {
			outcome.Hostname = name
		}
	}

	committed := e.emitActive(t, newEvent(EventResult, t.id, outcome), func() {
		t.append(outcome)
	})
	if !committed {
		e.metrics.IncrementResultsDropped()
		t.logger.Debug("Discarded result of canceled scan", "target", outcome.Address)
		return
	}
	e.metrics.IncrementHostsScanned(string(outcome.Status))

	if known && outcome.Hostname != "" {
		e.syncHostname(t, addr, outcome.Hostname)
	}
}

func (e *Engine) isKnown(t *task, addr netip.Addr) bool {
	if e.registry == nil {
		return false
	}
	known, err := e.registry.IsKnown(t.ctx, addr)
	if err != nil {
		t.logger.Warn("Known device lookup failed", "target", addr.String(), "error", err)
		return false
	}
	return known
}

// syncHostname stores a newly resolved name for a known device. Failures are
// logged and otherwise ignored.
func (e *Engine) syncHostname(t *task, addr netip.Addr, hostname string) {
	stored, _, err := e.registry.Hostname(t.ctx, addr)
	if err != nil {
		t.logger.Warn("Known device hostname lookup failed", "target", addr.String(), "error", err)
		return
	}
	if stored == hostname {
		return
	}

	if err := e.registry.UpdateHostname(t.ctx, addr, hostname); err != nil {
		e.metrics.IncrementRegistryUpdates(metrics.StatusError)
		t.logger.ErrorScan("Failed to update known device hostname", addr.String(), err)
		return
	}
	e.metrics.IncrementRegistryUpdates(metrics.StatusSuccess)
	t.logger.InfoScan("Updated known device hostname", addr.String(), "old", stored, "new", hostname)
}

// task is the state of one scan. Probes and lookups run on ctx; dispatch
// is canceled as soon as the task is deactivated.
type task struct {
	id       string
	addrs    iprange.AddressList
	ctx      context.Context
	dispatch context.Context
	stop     context.CancelFunc
	limiter  *rate.Limiter
	logger   *logging.Logger
	done     chan struct{}

	active atomic.Bool

	mu      sync.Mutex
	next    int
	results []Outcome
	fault   error
}

func newTask(ctx context.Context, id string, addrs iprange.AddressList, perSecond float64) *task {
	dispatch, stop := context.WithCancel(ctx)
	t := &task{
		id:       id,
		addrs:    append(iprange.AddressList(nil), addrs...),
		ctx:      ctx,
		dispatch: dispatch,
		stop:     stop,
		done:     make(chan struct{}),
	}
	if perSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	t.active.Store(true)
	return t
}

// wait blocks for the dispatch rate limiter, if any.
func (t *task) wait() error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(t.dispatch)
}

// dequeue hands out the next address while the task is active.
func (t *task) dequeue() (netip.Addr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() || t.next >= len(t.addrs) {
		return netip.Addr{}, false
	}
	addr := t.addrs[t.next]
	t.next++
	return addr, true
}

func (t *task) append(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = append(t.results, o)
}

func (t *task) snapshot() []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Outcome{}, t.results...)
}

func (t *task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault == nil {
		t.fault = err
	}
}

func (t *task) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fault
}
