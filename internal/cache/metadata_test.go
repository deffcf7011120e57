package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

func sampleCharts() []models.Chart {
	return []models.Chart{
		{
			ChainID:     "ethereum",
			PairAddress: "0xpepe",
			BaseToken:   models.Token{Symbol: "PEPE"},
			QuoteToken:  models.Token{Symbol: "WETH"},
			PriceUSD:    decimal.RequireFromString("0.0000101"),
			Volume24h:   decimal.NewFromInt(5000),
		},
		{
			ChainID:     "solana",
			PairAddress: "wifpair",
			BaseToken:   models.Token{Symbol: "WIF"},
			QuoteToken:  models.Token{Symbol: "SOL"},
		},
	}
}

func TestNewID(t *testing.T) {
	assert.Equal(t, "trending_1700000000123", NewID(time.UnixMilli(1700000000123)))
}

func TestStoreAndLoad(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := metrics.NewCollector()
	c := New(db, time.Hour, m, nil)
	ctx := context.Background()

	charts := sampleCharts()
	data, err := json.Marshal(charts)
	require.NoError(t, err)

	mock.ExpectSet("chartbracket:metadata:trending_1", string(data), time.Hour).SetVal("OK")
	require.NoError(t, c.Store(ctx, "trending_1", charts))

	mock.ExpectGet("chartbracket:metadata:trending_1").SetVal(string(data))
	got, err := c.Load(ctx, "trending_1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xpepe", got[0].PairAddress)
	assert.True(t, charts[0].PriceUSD.Equal(got[0].PriceUSD))

	require.NoError(t, mock.ExpectationsWereMet())

	snap := m.Snapshot()
	require.NotNil(t, snap.Cache)
	assert.Equal(t, int64(2), snap.Cache.Count)
}

func TestLoad_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, 0, nil, nil)

	mock.ExpectGet("chartbracket:metadata:trending_2").RedisNil()
	_, err := c.Load(context.Background(), "trending_2")
	require.ErrorIs(t, err, ErrMiss)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, 0, nil, nil)

	mock.ExpectGet("chartbracket:metadata:trending_3").SetErr(errors.New("connection refused"))
	_, err := c.Load(context.Background(), "trending_3")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestLoad_Corrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, 0, nil, nil)

	mock.ExpectGet("chartbracket:metadata:trending_4").SetVal("{not json")
	_, err := c.Load(context.Background(), "trending_4")
	require.Error(t, err)
}

func TestInvalidID(t *testing.T) {
	db, _ := redismock.NewClientMock()
	c := New(db, 0, nil, nil)

	require.ErrorIs(t, c.Store(context.Background(), "", nil), ErrInvalidID)
	_, err := c.Load(context.Background(), "has space")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestMatchTickers(t *testing.T) {
	matched, missing := MatchTickers(sampleCharts(), []string{"wifsol", "", "BTCUSDT", "PEPEWETH"})

	require.Len(t, matched, 2)
	assert.Equal(t, "wifpair", matched[0].PairAddress)
	assert.Equal(t, "WIFSOL", matched[0].Ticker)
	assert.Equal(t, "0xpepe", matched[1].PairAddress)
	assert.Equal(t, []string{"BTCUSDT"}, missing)
}
