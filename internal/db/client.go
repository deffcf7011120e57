// Package db provides SurrealDB persistence for chart verdicts and final
// rankings, with auto-reconnect support.
package db

import (
	"context"
	"crypto/tls"
	"errors"
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

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

const rankingTable = "ranking"

func init() {
	// WebSocket upgrades fail when ALPN negotiates HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

func (c Config) validate() error {
	var errs []error
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		errs = append(errs, fmt.Errorf("url %q: want ws:// or wss://", c.URL))
	}
	if c.Namespace == "" || c.Database == "" {
		errs = append(errs, errors.New("namespace and database are required"))
	}
	if c.AuthLevel != "" && c.AuthLevel != "root" && c.AuthLevel != "database" {
		errs = append(errs, fmt.Errorf("auth level %q: want root or database", c.AuthLevel))
	}
	return errors.Join(errs...)
}

// Client stores verdicts and rankings. It reconnects on its own after the
// socket drops.
type Client struct {
	conn    *rews.Connection[*gorillaws.Connection]
	db      *surrealdb.DB
	logger  logger.Logger
	metrics *metrics.Collector
}

// NewClient connects, signs in and selects the namespace and database.
// Query timings are recorded on m when it is non-nil.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger, m *metrics.Collector) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("surrealdb config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())

	conn := reconnecting(cfg.URL, sdkLogger)
	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err == nil {
		err = signIn(ctx, db, cfg)
	}
	if err == nil {
		err = db.Use(ctx, cfg.Namespace, cfg.Database)
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("open %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}

	sdkLogger.Info("SurrealDB connection established", "namespace", cfg.Namespace, "database", cfg.Database)
	return &Client{conn: conn, db: db, logger: sdkLogger, metrics: m}, nil
}

// reconnecting builds a CBOR websocket connection that redials with
// exponential backoff. gorillaws appends /rpc itself.
func reconnecting(url string, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
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
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 500 * time.Millisecond
	retryer.MaxDelay = 15 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 8
	conn.Retryer = retryer
	return conn
}

func signIn(ctx context.Context, db *surrealdb.DB, cfg Config) error {
	auth := &surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, *auth); err != nil {
		return fmt.Errorf("signin as %s (%s): %w", cfg.Username, or(cfg.AuthLevel, "root"), err)
	}
	return nil
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// Ping runs a trivial query to check the connection.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := query[any](ctx, c, "RETURN true", nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// InitSchema defines the choice and ranking tables. It is idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := query[any](ctx, c, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Info("schema ready")
	return nil
}

// query runs sql, records its timing and maps known query errors to sentinels.
func query[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (*[]surrealdb.QueryResult[T], error) {
	start := time.Now()
	results, err := surrealdb.Query[T](ctx, c.db, sql, vars)
	c.metrics.RecordOutcome(metrics.OpDBQuery, time.Since(start), err)
	return results, wrapQueryError(err)
}

// WipeData deletes every verdict and ranking but keeps the schema.
// Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")
	for _, table := range []string{rankingTable, models.ChoiceTable} {
		if _, err := query[any](ctx, c, "DELETE type::table($table)", map[string]any{"table": table}); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
