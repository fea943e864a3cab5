// Package db stores accounts and chat turns in SurrealDB over an
// auto-reconnecting WebSocket connection.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

func init() {
	// WebSocket upgrades fail when wss:// negotiates HTTP/2 via ALPN.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Reconnect settings for the WebSocket connection.
const (
	reconnectCheckInterval = 5 * time.Second
	reconnectInitialDelay  = time.Second
	reconnectMaxDelay      = 30 * time.Second
	reconnectMaxRetries    = 10
)

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Client is the SurrealDB storage backend.
type Client struct {
	conn    *rews.Connection[*gorillaws.Connection]
	db      *surrealdb.DB
	logger  logger.Logger
	metrics *metrics.Collector
}

var _ store.Store = (*Client)(nil)

// NewClient connects, signs in and selects the namespace and database.
// mc may be nil.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger, mc *metrics.Collector) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())

	conn := dial(cfg.URL, sdkLogger)
	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if err := signIn(ctx, db, cfg); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}

	sdkLogger.Info("SurrealDB connection established", "namespace", cfg.Namespace, "database", cfg.Database)
	return &Client{conn: conn, db: db, logger: sdkLogger, metrics: mc}, nil
}

// dial builds a reconnecting connection with exponential backoff.
// gorillaws appends /rpc itself, so a trailing /rpc in url is dropped.
func dial(url string, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	baseURL := strings.TrimSuffix(url, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		reconnectCheckInterval,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = reconnectInitialDelay
	retryer.MaxDelay = reconnectMaxDelay
	retryer.Multiplier = 2.0
	retryer.MaxRetries = reconnectMaxRetries
	conn.Retryer = retryer
	return conn
}

// signIn authenticates as a database user when AuthLevel is "database",
// otherwise as root.
func signIn(ctx context.Context, db *surrealdb.DB, cfg Config) error {
	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		return fmt.Errorf("signin as %s (%s): %w", cfg.Username, authLevel(cfg), err)
	}
	return nil
}

func authLevel(cfg Config) string {
	if cfg.AuthLevel == "database" {
		return "database"
	}
	return "root"
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the account and turn tables. It is idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Debug("schema ready")
	return nil
}

// Ping runs a trivial query to check the connection.
func (c *Client) Ping(ctx context.Context) error {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())
	if _, err := surrealdb.Query[int](ctx, c.db, "RETURN 1", nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Stats counts stored turns, distinct owners and accounts.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())
	results, err := surrealdb.Query[store.Stats](ctx, c.db, `
		RETURN {
			turns: array::len((SELECT id FROM turn)),
			owners: array::len(array::distinct((SELECT VALUE owner FROM turn))),
			accounts: array::len((SELECT id FROM account))
		}
	`, nil)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return store.Stats{}, nil
	}
	return (*results)[0].Result, nil
}

// WipeData deletes every turn and account. The schema is kept.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all turns and accounts")
	if _, err := surrealdb.Query[any](ctx, c.db, "DELETE turn; DELETE account;", nil); err != nil {
		return fmt.Errorf("wipe data: %w", err)
	}
	return nil
}
