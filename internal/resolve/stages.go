package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

var (
	errNoNameservers = errors.New("no nameservers configured")
	errNoName        = errors.New("no name returned")
)

// Stage is one strategy of the resolution cascade.
type Stage interface {
	Name() string
	Lookup(ctx context.Context, addr netip.Addr) (string, error)
}

// PTRStage queries the configured nameservers for the in-addr.arpa PTR
// record of an address. Servers are tried in order until one answers.
type PTRStage struct {
	Client  *dns.Client
	Servers []string
}

// NewPTRStage uses servers when given, otherwise the system resolv.conf.
func NewPTRStage(servers []string) *PTRStage {
	if len(servers) == 0 {
		servers = systemNameservers()
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		normalized = append(normalized, withDNSPort(s))
	}
	return &PTRStage{
		Client:  &dns.Client{Net: "udp"},
		Servers: normalized,
	}
}

// Name implements Stage.
func (s *PTRStage) Name() string { return "ptr" }

// Lookup implements Stage.
func (s *PTRStage) Lookup(ctx context.Context, addr netip.Addr) (string, error) {
	if len(s.Servers) == 0 {
		return "", errNoNameservers
	}

	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	var lastErr error
	for _, server := range s.Servers {
		resp, _, err := s.Client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("ptr %s: %s", arpa, dns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return ptr.Ptr, nil
			}
		}
		return "", errNoName
	}
	return "", lastErr
}

// OSStage asks the operating system resolver, which can consult hosts files,
// mDNS, LLMNR or NetBIOS depending on the platform's name service setup.
type OSStage struct {
	Resolver *net.Resolver
}

// NewOSStage returns a stage backed by the system (cgo) resolver.
func NewOSStage() *OSStage {
	return &OSStage{Resolver: &net.Resolver{PreferGo: false}}
}

// Name implements Stage.
func (s *OSStage) Name() string { return "os" }

// Lookup implements Stage.
func (s *OSStage) Lookup(ctx context.Context, addr netip.Addr) (string, error) {
	names, err := s.Resolver.LookupAddr(ctx, addr.String())
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errNoName
	}
	return names[0], nil
}

func systemNameservers() []string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return nil
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers
}

func withDNSPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), "53")
}
