package db

import (
	"database/sql/driver"
	"fmt"
	"net/netip"
	"time"
)

// IPAddr maps a netip.Addr onto the PostgreSQL INET type.
type IPAddr struct {
	netip.Addr
}

// NewIPAddr wraps addr.
func NewIPAddr(addr netip.Addr) IPAddr {
	return IPAddr{Addr: addr}
}

// Scan implements sql.Scanner.
func (ip *IPAddr) Scan(value interface{}) error {
	if value == nil {
		ip.Addr = netip.Addr{}
		return nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into IPAddr", value)
	}

	// INET columns render host addresses with a /32 suffix in some drivers.
	if prefix, err := netip.ParsePrefix(s); err == nil {
		ip.Addr = prefix.Addr()
		return nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return fmt.Errorf("failed to parse IP address: %s", s)
	}
	ip.Addr = addr
	return nil
}

// Value implements driver.Valuer.
func (ip IPAddr) Value() (driver.Value, error) {
	if !ip.IsValid() {
		return nil, nil
	}
	return ip.Addr.String(), nil
}

// String returns the IP address string.
func (ip IPAddr) String() string {
	if !ip.IsValid() {
		return ""
	}
	return ip.Addr.String()
}

// Device is a row of the devices table.
type Device struct {
	IPAddress IPAddr    `db:"ip_address" json:"ip_address"`
	Hostname  *string   `db:"hostname" json:"hostname,omitempty"`
	Name      *string   `db:"name" json:"name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HostnameOrEmpty returns the stored hostname, or "" when none is set.
func (d *Device) HostnameOrEmpty() string {
	if d == nil || d.Hostname == nil {
		return ""
	}
	return *d.Hostname
}
