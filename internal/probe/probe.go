// Package probe decides host liveness with plain TCP connect attempts.
//
// A probe only reports whether a connection could be established. The
// connection is closed immediately and no data is exchanged.
package probe

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/anstrom/hostsweep/internal/metrics"
)

const (
	// DefaultTimeout bounds a single connect attempt.
	DefaultTimeout = time.Second
)

// DefaultPorts are commonly open on desktops, servers and printers.
var DefaultPorts = []int{80, 443, 135}

// Reachability is the outcome of one probe.
type Reachability int

const (
	Unreachable Reachability = iota
	Reachable
)

// String implements fmt.Stringer.
func (r Reachability) String() string {
	if r == Reachable {
		return metrics.ProbeReachable
	}
	return metrics.ProbeUnreachable
}

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPProber probes a fixed set of ports on each address.
type TCPProber struct {
	Ports   []int
	Timeout time.Duration
	Dialer  Dialer
	Metrics *metrics.PrometheusMetrics
}

// NewTCPProber builds a prober, filling unset values with defaults.
func NewTCPProber(ports []int, timeout time.Duration, m *metrics.PrometheusMetrics) *TCPProber {
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if m == nil {
		m = metrics.GetGlobalMetrics()
	}
	return &TCPProber{
		Ports:   append([]int(nil), ports...),
		Timeout: timeout,
		Dialer:  &net.Dialer{},
		Metrics: m,
	}
}

// Probe attempts a single TCP connection with the standard dialer.
func Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) Reachability {
	return dial(ctx, &net.Dialer{}, addr, port, timeout)
}

// Probe attempts a single TCP connection. Timeouts and connection errors
// are both reported as Unreachable. Dials cut short by ctx are counted as
// abandoned rather than unreachable.
func (p *TCPProber) Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) Reachability {
	start := time.Now()
	r := dial(ctx, p.Dialer, addr, port, timeout)
	if p.Metrics != nil {
		result := r.String()
		if r == Unreachable && ctx.Err() != nil {
			result = metrics.ProbeAbandoned
		}
		p.Metrics.RecordProbe(strconv.Itoa(port), result, time.Since(start))
	}
	return r
}

// Alive probes every configured port concurrently. It returns true as soon as
// any port accepts a connection and false only once all of them have failed.
// Outstanding dials are abandoned after the first success.
func (p *TCPProber) Alive(ctx context.Context, addr netip.Addr) bool {
	if len(p.Ports) == 0 {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Reachability, len(p.Ports))
	for _, port := range p.Ports {
		go func(port int) {
			results <- p.Probe(ctx, addr, port, p.Timeout)
		}(port)
	}

	for range p.Ports {
		if <-results == Reachable {
			return true
		}
	}
	return false
}

func dial(ctx context.Context, d Dialer, addr netip.Addr, port int, timeout time.Duration) Reachability {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := netip.AddrPortFrom(addr, uint16(port)).String()
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return Unreachable
	}
	_ = conn.Close()
	return Reachable
}
