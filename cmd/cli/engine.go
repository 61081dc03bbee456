package cli

import (
	"context"
	"fmt"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/db"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/probe"
	"github.com/anstrom/hostsweep/internal/registry"
	"github.com/anstrom/hostsweep/internal/resolve"
	"github.com/anstrom/hostsweep/internal/scanner"
)

// openRegistry returns the Postgres registry when the database is enabled
// and the in-memory one seeded from config otherwise. The returned database
// is nil in the in-memory case.
func openRegistry(ctx context.Context, cfg *config.Config, m *metrics.PrometheusMetrics) (registry.Registry, *db.DB, error) {
	if !cfg.Database.Enabled {
		mem, err := registry.NewMemory(cfg.Registry.Known)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load known devices: %w", err)
		}
		return mem, nil, nil
	}

	database, err := db.ConnectAndMigrate(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return registry.NewPostgres(db.NewDeviceRepository(database, m)), database, nil
}

// newEngine wires the TCP prober, the hostname resolver and the registry
// into a scan engine reporting to listener.
func newEngine(
	cfg *config.Config,
	listener scanner.Listener,
	reg registry.Registry,
	m *metrics.PrometheusMetrics,
	logger *logging.Logger,
) *scanner.Engine {
	prober := probe.NewTCPProber(cfg.Scanning.Ports, cfg.Scanning.PortTimeout, m)
	resolver := resolve.New(cfg.ResolveConfig(), m)

	return scanner.New(scanner.Config{
		Concurrency:  cfg.Scanning.Concurrency,
		RateLimit:    cfg.Scanning.RateLimit,
		MaxAddresses: cfg.Scanning.MaxAddresses,
	}, prober, resolver,
		scanner.WithListener(listener),
		scanner.WithRegistry(reg),
		scanner.WithMetrics(m),
		scanner.WithLogger(logger))
}
