// Package mysql implements a sensor database backed by MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSensorNotFound is returned when a sensor ID matches no record.
var ErrSensorNotFound = errors.New("sensor not found")

// MySQLStorage updates sensor records in MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQL sensor database.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// ClearGatewayBinding implements the storage interface method.
func (s *MySQLStorage) ClearGatewayBinding(ctx context.Context, sensorID string) error {
	r, err := s.db.ExecContext(
		ctx,
		`UPDATE sensors SET gateway_id = NULL, gateway_index = NULL WHERE id = ?;`,
		sensorID,
	)
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}
	return nil
}
