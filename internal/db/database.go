// Package db provides PostgreSQL connectivity for hostsweep's device
// registry. It handles connection pooling, schema migrations and the
// device lookups the scanner performs while annotating results.
package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
)

// sanitizeDBError converts raw database errors into errors that are safe to
// log or return without exposing SQL details or credentials. The original
// error is kept as Cause.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewDatabaseError(errors.CodeNotFound, "Resource not found")
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		var dbErr *errors.DatabaseError
		switch pqErr.Code {
		case "23505": // unique_violation
			dbErr = errors.NewDatabaseError(errors.CodeConflict, "Resource already exists")
		case "23502": // not_null_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Required field is missing")
		case "23514": // check_violation
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Data validation failed")
		case "22P02": // invalid_text_representation, e.g. a malformed inet
			dbErr = errors.NewDatabaseError(errors.CodeValidation, "Invalid value")
		case "57014": // query_canceled
			dbErr = errors.NewDatabaseError(errors.CodeCanceled, "Database operation was canceled")
		case "57P01", "08000", "08003", "08006":
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database connection error")
		default:
			dbErr = errors.NewDatabaseError(errors.CodeDatabaseQuery,
				fmt.Sprintf("Database operation failed: %s", operation))
		}
		dbErr.Operation = operation
		dbErr.Cause = err
		return dbErr
	}

	dbErr := errors.NewDatabaseError(errors.CodeDatabaseQuery, fmt.Sprintf("Database operation failed: %s", operation))
	dbErr.Operation = operation
	dbErr.Cause = err
	return dbErr
}

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5
	defaultConnMaxIdleTime = 5
)

// DB wraps sqlx.DB with additional functionality.
type DB struct {
	*sqlx.DB
}

// Config holds database configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"-"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns the default database configuration. The database is
// disabled until a name and credentials are configured.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime * time.Minute,
		ConnMaxIdleTime: defaultConnMaxIdleTime * time.Minute,
	}
}

// DSN renders the lib/pq key=value connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Connect establishes a connection to PostgreSQL. Returned errors never
// contain the DSN.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.DSN())
	if err != nil {
		return nil, errors.ErrDatabaseConnection(err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection, "Failed to verify database connection", err)
	}

	logging.Info("Connected to database",
		"host", config.Host, "port", config.Port, "database", config.Database)
	return &DB{DB: db}, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// DeviceRepository reads and updates known devices.
type DeviceRepository struct {
	db      *DB
	metrics *metrics.PrometheusMetrics
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(db *DB, m *metrics.PrometheusMetrics) *DeviceRepository {
	if m == nil {
		m = metrics.GetGlobalMetrics()
	}
	return &DeviceRepository{db: db, metrics: m}
}

func (r *DeviceRepository) observe(operation string, start time.Time, err error) {
	r.metrics.RecordDatabaseQuery(operation, time.Since(start), err == nil || stderrors.Is(err, sql.ErrNoRows))
}

// GetByIP retrieves a device by address. A missing device is a NOT_FOUND error.
func (r *DeviceRepository) GetByIP(ctx context.Context, ip IPAddr) (*Device, error) {
	const query = `
		SELECT ip_address, hostname, name, created_at, updated_at
		FROM devices
		WHERE ip_address = $1`

	start := time.Now()
	var device Device
	err := r.db.GetContext(ctx, &device, query, ip)
	r.observe("select", start, err)
	if err != nil {
		return nil, sanitizeDBError("get device", err)
	}
	return &device, nil
}

// Exists reports whether a device with this address is registered.
func (r *DeviceRepository) Exists(ctx context.Context, ip IPAddr) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM devices WHERE ip_address = $1)`

	start := time.Now()
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, ip)
	r.observe("exists", start, err)
	if err != nil {
		return false, sanitizeDBError("check device", err)
	}
	return exists, nil
}

// UpdateHostname stores a new resolved hostname for a registered device.
// Updating an unknown address is a NOT_FOUND error.
func (r *DeviceRepository) UpdateHostname(ctx context.Context, ip IPAddr, hostname string) error {
	const query = `
		UPDATE devices
		SET hostname = $2, updated_at = NOW()
		WHERE ip_address = $1`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, ip, hostname)
	r.observe("update", start, err)
	if err != nil {
		return sanitizeDBError("update device hostname", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sanitizeDBError("update device hostname", err)
	}
	if n == 0 {
		return sanitizeDBError("update device hostname", sql.ErrNoRows)
	}
	return nil
}

// Upsert registers a device or refreshes its name and hostname.
func (r *DeviceRepository) Upsert(ctx context.Context, device *Device) error {
	const query = `
		INSERT INTO devices (ip_address, hostname, name)
		VALUES (:ip_address, :hostname, :name)
		ON CONFLICT (ip_address)
		DO UPDATE SET
			hostname = COALESCE(EXCLUDED.hostname, devices.hostname),
			name = COALESCE(EXCLUDED.name, devices.name),
			updated_at = NOW()`

	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, query, device)
	r.observe("upsert", start, err)
	if err != nil {
		return sanitizeDBError("upsert device", err)
	}
	return nil
}
