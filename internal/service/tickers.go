package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/chartbracket/internal/cache"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

// resolveConcurrency caps parallel BestPair lookups; the source limiter
// paces them further.
const resolveConcurrency = 4

// Trending returns the trending chart list from the chart source.
func (m *Manager) Trending(ctx context.Context) ([]models.Chart, error) {
	if m.charts == nil {
		return nil, ErrNoSource
	}
	charts, err := m.charts.Trending(ctx)
	if err != nil {
		return nil, fmt.Errorf("trending charts: %w", err)
	}
	return charts, nil
}

// TrendingTickers fetches trending charts, caches them under a new metadata
// id and returns their BASE+QUOTE tickers with that id.
func (m *Manager) TrendingTickers(ctx context.Context) (tickers []string, metadataID string, err error) {
	charts, err := m.Trending(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, ch := range charts {
		tickers = append(tickers, strings.ToUpper(ch.BaseToken.Symbol+ch.QuoteToken.Symbol))
	}

	if m.metadata != nil {
		id := cache.NewID(time.Now())
		if err := m.metadata.Store(ctx, id, charts); err != nil {
			m.logger.Warn("failed to cache trending metadata", "error", err)
		} else {
			metadataID = id
		}
	}
	return tickers, metadataID, nil
}

// StoreMetadata caches charts under id.
func (m *Manager) StoreMetadata(ctx context.Context, id string, charts []models.Chart) error {
	if m.metadata == nil {
		return errors.New("metadata cache not configured")
	}
	return m.metadata.Store(ctx, id, charts)
}

// LoadMetadata returns the charts cached under id.
func (m *Manager) LoadMetadata(ctx context.Context, id string) ([]models.Chart, error) {
	if m.metadata == nil {
		return nil, fmt.Errorf("%s: %w", id, cache.ErrMiss)
	}
	return m.metadata.Load(ctx, id)
}

// ResolveTickers turns tickers into charts in random order. When metadataID
// names a cached trending list with at least one matching ticker, only the
// cached matches are used. Otherwise each ticker is looked up with BestPair,
// which yields a placeholder chart when nothing is found.
func (m *Manager) ResolveTickers(ctx context.Context, tickers []string, metadataID string) ([]models.Chart, error) {
	var cleaned []string
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoCharts
	}

	if metadataID != "" && m.metadata != nil {
		cached, err := m.metadata.Load(ctx, metadataID)
		switch {
		case err == nil:
			matched, missing := cache.MatchTickers(cached, cleaned)
			if len(matched) > 0 {
				if len(missing) > 0 {
					m.logger.Debug("tickers missing from cached metadata", "metadata_id", metadataID, "missing", missing)
				}
				shuffle(matched)
				return matched, nil
			}
		case errors.Is(err, cache.ErrMiss):
			m.logger.Debug("metadata cache miss", "metadata_id", metadataID)
		default:
			m.logger.Warn("failed to load cached metadata", "metadata_id", metadataID, "error", err)
		}
	}

	if m.charts == nil {
		return nil, ErrNoSource
	}

	shuffle(cleaned)
	charts := make([]models.Chart, len(cleaned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, t := range cleaned {
		g.Go(func() error {
			charts[i] = m.charts.BestPair(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return charts, nil
}

// NewSessionFromTickers resolves tickers and starts a session over them.
func (m *Manager) NewSessionFromTickers(ctx context.Context, id string, tickers []string, metadataID string) (SessionView, error) {
	charts, err := m.ResolveTickers(ctx, tickers, metadataID)
	if err != nil {
		return SessionView{}, err
	}
	return m.NewSessionWithID(ctx, id, charts)
}

func shuffle[T any](s []T) {
	rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}
