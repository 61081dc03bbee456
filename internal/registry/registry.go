// Package registry answers whether an address belongs to a known device and
// keeps the stored hostname of known devices current.
package registry

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks github.com/anstrom/hostsweep/internal/registry Registry

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
)

// Registry is the scanner's view of the known-device store.
type Registry interface {
	// IsKnown reports whether addr is a registered device.
	IsKnown(ctx context.Context, addr netip.Addr) (bool, error)
	// Hostname returns the stored hostname of a known device. ok is false
	// when the device is unknown or has no hostname.
	Hostname(ctx context.Context, addr netip.Addr) (hostname string, ok bool, err error)
	// UpdateHostname records a newly resolved hostname for a known device.
	UpdateHostname(ctx context.Context, addr netip.Addr, hostname string) error
}

// KnownDevice is one seed entry of the in-memory registry.
type KnownDevice struct {
	Address  string `yaml:"address" json:"address"`
	Hostname string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
}

type device struct {
	hostname string
	name     string
}

// Memory is a Registry held in process memory.
type Memory struct {
	mu      sync.RWMutex
	devices map[netip.Addr]device
}

// NewMemory returns a registry seeded with known. Entries with an invalid or
// non-IPv4 address are rejected.
func NewMemory(known []KnownDevice) (*Memory, error) {
	m := &Memory{devices: make(map[netip.Addr]device, len(known))}
	for _, k := range known {
		addr, err := netip.ParseAddr(k.Address)
		if err != nil || !addr.Is4() {
			return nil, fmt.Errorf("invalid known device address %q", k.Address)
		}
		m.devices[addr] = device{hostname: k.Hostname, name: k.Name}
	}
	return m, nil
}

// Add registers or replaces a device.
func (m *Memory) Add(addr netip.Addr, hostname, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[addr] = device{hostname: hostname, name: name}
}

// IsKnown implements Registry.
func (m *Memory) IsKnown(_ context.Context, addr netip.Addr) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[addr]
	return ok, nil
}

// Hostname implements Registry.
func (m *Memory) Hostname(_ context.Context, addr netip.Addr) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[addr]
	if !ok || d.hostname == "" {
		return "", false, nil
	}
	return d.hostname, true, nil
}

// UpdateHostname implements Registry. Unknown addresses are ignored.
func (m *Memory) UpdateHostname(_ context.Context, addr netip.Addr, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[addr]
	if !ok {
		return nil
	}
	d.hostname = hostname
	m.devices[addr] = d
	return nil
}

// Known returns a snapshot of every registered device in address order.
func (m *Memory) Known() []KnownDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addrs := make([]netip.Addr, 0, len(m.devices))
	for addr := range m.devices {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	out := make([]KnownDevice, 0, len(addrs))
	for _, addr := range addrs {
		d := m.devices[addr]
		out = append(out, KnownDevice{Address: addr.String(), Hostname: d.hostname, Name: d.name})
	}
	return out
}
