// Package cache keeps trending chart metadata in Redis so a session started
// from trending tickers can reuse the exact pairs the tickers were built from.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

const keyPrefix = "chartbracket:metadata:"

var (
	// ErrMiss means no metadata is stored under the id (never stored or expired).
	ErrMiss = errors.New("metadata not cached")
	// ErrInvalidID means the id is empty or contains whitespace.
	ErrInvalidID = errors.New("invalid metadata id")
)

// MetadataCache stores chart lists by metadata id.
type MetadataCache struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial opens a Redis client and checks it with PING.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// New wraps rdb. A non-positive ttl defaults to 24h.
func New(rdb redis.Cmdable, ttl time.Duration, m *metrics.Collector, logger *slog.Logger) *MetadataCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataCache{rdb: rdb, ttl: ttl, metrics: m, logger: logger}
}

// NewID returns a metadata id of the form trending_<unix millis>.
func NewID(now time.Time) string {
	return fmt.Sprintf("trending_%d", now.UnixMilli())
}

func key(id string) string {
	return keyPrefix + id
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, " \t\r\n")
}

// Store saves charts under id for the cache TTL.
func (c *MetadataCache) Store(ctx context.Context, id string, charts []models.Chart) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	data, err := json.Marshal(charts)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	start := time.Now()
	err = c.rdb.Set(ctx, key(id), string(data), c.ttl).Err()
	c.metrics.RecordOutcome(metrics.OpCache, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("store metadata %s: %w", id, err)
	}

	c.logger.Debug("trending metadata stored", "metadata_id", id, "charts", len(charts))
	return nil
}

// Load returns the charts stored under id, or ErrMiss.
func (c *MetadataCache) Load(ctx context.Context, id string) ([]models.Chart, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	start := time.Now()
	data, err := c.rdb.Get(ctx, key(id)).Result()
	if errors.Is(err, redis.Nil) {
		c.metrics.RecordOutcome(metrics.OpCache, time.Since(start), nil)
		return nil, fmt.Errorf("%s: %w", id, ErrMiss)
	}
	c.metrics.RecordOutcome(metrics.OpCache, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", id, err)
	}

	var charts []models.Chart
	if err := json.Unmarshal([]byte(data), &charts); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return charts, nil
}

// MatchTickers picks, for each ticker, the first cached chart whose
// BASE+QUOTE symbol equals it. Tickers without a match are returned in missing.
func MatchTickers(charts []models.Chart, tickers []string) (matched []models.Chart, missing []string) {
	bySymbol := make(map[string]models.Chart, len(charts))
	for _, ch := range charts {
		sym := strings.ToUpper(ch.BaseToken.Symbol + ch.QuoteToken.Symbol)
		if _, ok := bySymbol[sym]; !ok {
			bySymbol[sym] = ch
		}
	}

	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		ch, ok := bySymbol[t]
		if !ok {
			missing = append(missing, t)
			continue
		}
		ch.Ticker = t
		matched = append(matched, ch)
	}
	return matched, missing
}
