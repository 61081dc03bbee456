package registry

import (
	"context"
	"net/netip"

	"github.com/anstrom/hostsweep/internal/db"
	"github.com/anstrom/hostsweep/internal/errors"
)

// DeviceStore is the subset of db.DeviceRepository the registry needs.
type DeviceStore interface {
	GetByIP(ctx context.Context, ip db.IPAddr) (*db.Device, error)
	Exists(ctx context.Context, ip db.IPAddr) (bool, error)
	UpdateHostname(ctx context.Context, ip db.IPAddr, hostname string) error
}

// Postgres is a Registry backed by the devices table.
type Postgres struct {
	store DeviceStore
}

// NewPostgres wraps a device store.
func NewPostgres(store DeviceStore) *Postgres {
	return &Postgres{store: store}
}

// IsKnown implements Registry.
func (p *Postgres) IsKnown(ctx context.Context, addr netip.Addr) (bool, error) {
	return p.store.Exists(ctx, db.NewIPAddr(addr))
}

// Hostname implements Registry.
func (p *Postgres) Hostname(ctx context.Context, addr netip.Addr) (string, bool, error) {
	device, err := p.store.GetByIP(ctx, db.NewIPAddr(addr))
	if errors.IsCode(err, errors.CodeNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	name := device.HostnameOrEmpty()
	return name, name != "", nil
}

// UpdateHostname implements Registry. A device removed between lookup and
// update is not an error.
func (p *Postgres) UpdateHostname(ctx context.Context, addr netip.Addr, hostname string) error {
	err := p.store.UpdateHostname(ctx, db.NewIPAddr(addr), hostname)
	if errors.IsCode(err, errors.CodeNotFound) {
		return nil
	}
	return err
}
