package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/migrations"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Client holds the database handle and the SQL dialect used to build queries
type Client struct {
	db      *sql.DB
	dialect string
	log     logger.Logger
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for database connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// Options configures NewClient
type Options struct {
	Driver         string // postgres or sqlite3
	URL            string
	Pool           PoolConfig
	SSL            *SSLConfig
	SkipMigrations bool
	Logger         logger.Logger
}

// DefaultPoolConfig returns sensible defaults for connection pooling
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// SSL mode overrides any existing sslmode in URL
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()
	return parsedURL.String(), nil
}

// NewClient opens the database, configures the pool and applies migrations
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	connStr := opts.URL
	switch opts.Driver {
	case dialect.Postgres:
		var err error
		connStr, err = BuildConnectionString(opts.URL, opts.SSL)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if opts.SSL != nil && opts.SSL.Mode != "" && opts.SSL.Mode != "disable" {
			log.Info("database SSL enabled", "mode", opts.SSL.Mode, "root_cert", opts.SSL.RootCertPath)
		}
	case dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", opts.Driver, err)
	}

	pool := opts.Pool
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	log.Info("database connection pool configured",
		"driver", opts.Driver,
		"max_open", pool.MaxOpenConns,
		"max_idle", pool.MaxIdleConns,
		"max_lifetime", pool.ConnMaxLifetime.String(),
	)

	client := New(db, opts.Driver, log)

	if !opts.SkipMigrations {
		if err := client.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return client, nil
}

// New wraps an already opened database
func New(db *sql.DB, driver string, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{db: db, dialect: driver, log: log}
}

// Migrate applies all pending schema migrations
func (c *Client) Migrate(ctx context.Context) error {
	gooseDialect := goose.DialectPostgres
	if c.dialect == dialect.SQLite {
		gooseDialect = goose.DialectSQLite3
	}

	provider, err := goose.NewProvider(gooseDialect, c.db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		c.log.Info("migration applied", "version", r.Source.Version, "duration", r.Duration.String())
	}
	return nil
}

// DB returns the underlying database handle
func (c *Client) DB() *sql.DB {
	return c.db
}

// Dialect returns the SQL dialect name
func (c *Client) Dialect() string {
	return c.dialect
}

// SQL returns a query builder bound to the client's dialect
func (c *Client) SQL() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// Exec runs a built statement on the querier bound to ctx
func (c *Client) Exec(ctx context.Context, q entsql.Querier) (sql.Result, error) {
	query, args := q.Query()
	return c.Q(ctx).ExecContext(ctx, query, args...)
}

// Query runs a built query on the querier bound to ctx
func (c *Client) Query(ctx context.Context, q entsql.Querier) (*sql.Rows, error) {
	query, args := q.Query()
	return c.Q(ctx).QueryContext(ctx, query, args...)
}

// QueryRow runs a built single-row query on the querier bound to ctx
func (c *Client) QueryRow(ctx context.Context, q entsql.Querier) *sql.Row {
	query, args := q.Query()
	return c.Q(ctx).QueryRowContext(ctx, query, args...)
}

// Count runs a COUNT(*) selector
func (c *Client) Count(ctx context.Context, s *entsql.Selector) (int, error) {
	var n int
	if err := c.QueryRow(ctx, s).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.db.Stats()
}

// IsUniqueViolation reports whether err is a unique constraint failure
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key failure
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
