package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/metrics"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &DB{DB: sqlx.NewDb(conn, "postgres")}, mock
}

func newRepo(t *testing.T) (*DeviceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewDeviceRepository(db, metrics.NewPrometheusMetrics()), mock
}

var deviceIP = NewIPAddr(netip.MustParseAddr("192.168.1.10"))

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, Database: "hostsweep", Username: "u", Password: "p", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 dbname=hostsweep user=u password=p sslmode=require", cfg.DSN())
}

func TestDeviceRepository_GetByIP(t *testing.T) {
	cols := []string{"ip_address", "hostname", "name", "created_at", "updated_at"}
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
			WithArgs("192.168.1.10").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("192.168.1.10/32", "nas.lan", "NAS", now, now))

		device, err := repo.GetByIP(context.Background(), deviceIP)
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.10", device.IPAddress.String())
		assert.Equal(t, "nas.lan", device.HostnameOrEmpty())
		require.NotNil(t, device.Name)
		assert.Equal(t, "NAS", *device.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null hostname", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
			WillReturnRows(sqlmock.NewRows(cols).AddRow("192.168.1.10", nil, nil, now, now))

		device, err := repo.GetByIP(context.Background(), deviceIP)
		require.NoError(t, err)
		assert.Equal(t, "", device.HostnameOrEmpty())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := repo.GetByIP(context.Background(), deviceIP)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestDeviceRepository_Exists(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("192.168.1.10").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("192.168.1.10").
		WillReturnError(fmt.Errorf("connection reset by peer"))

	ok, err := repo.Exists(context.Background(), deviceIP)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(context.Background(), deviceIP)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseQuery))
	assert.NotContains(t, err.Error(), "connection reset", "raw driver errors must not leak")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_UpdateHostname(t *testing.T) {
	t.Run("updates row", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE devices")).
			WithArgs("192.168.1.10", "nas.lan").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateHostname(context.Background(), deviceIP, "nas.lan"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown device", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE devices")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateHostname(context.Background(), deviceIP, "nas.lan")
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestDeviceRepository_Upsert(t *testing.T) {
	repo, mock := newRepo(t)
	hostname, name := "nas.lan", "NAS"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices")).
		WithArgs("192.168.1.10", hostname, name).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &Device{IPAddress: deviceIP, Hostname: &hostname, Name: &name})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"nil", nil, ""},
		{"no rows", sql.ErrNoRows, errors.CodeNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", sql.ErrNoRows), errors.CodeNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, errors.CodeConflict},
		{"check violation", &pq.Error{Code: "23514"}, errors.CodeValidation},
		{"bad inet", &pq.Error{Code: "22P02"}, errors.CodeValidation},
		{"canceled", &pq.Error{Code: "57014"}, errors.CodeCanceled},
		{"connection", &pq.Error{Code: "08006"}, errors.CodeDatabaseConnection},
		{"unknown pq", &pq.Error{Code: "XX000"}, errors.CodeDatabaseQuery},
		{"other", fmt.Errorf("boom"), errors.CodeDatabaseQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeDBError("op", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.code, errors.GetCode(got))
		})
	}
}

func TestIPAddr(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    string
		wantErr bool
	}{
		{"plain string", "10.0.0.1", "10.0.0.1", false},
		{"inet with prefix", "10.0.0.1/32", "10.0.0.1", false},
		{"bytes", []byte("10.0.0.2"), "10.0.0.2", false},
		{"nil", nil, "", false},
		{"garbage", "nope", "", true},
		{"wrong type", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ip IPAddr
			err := ip.Scan(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip.String())
		})
	}

	v, err := IPAddr{}.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = deviceIP.Value()
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.10", v)
}
