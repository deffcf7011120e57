package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)
	c.RecordOutcome(OpDexScreener, 5*time.Millisecond, errors.New("boom"))

	snap := c.Snapshot()
	require.NotNil(t, snap.DBQuery)
	assert.Equal(t, int64(2), snap.DBQuery.Count)
	assert.Equal(t, int64(10), snap.DBQuery.MinTimeMs)
	assert.Equal(t, int64(30), snap.DBQuery.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.DBQuery.AvgTimeMs, 0.001)
	assert.Zero(t, snap.DBQuery.Errors)

	require.NotNil(t, snap.DexScreener)
	assert.Equal(t, int64(1), snap.DexScreener.Errors)

	assert.Nil(t, snap.CoinGecko, "untouched ops stay nil")
	assert.Greater(t, snap.UptimeSeconds, 0.0)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpCache, time.Millisecond)
		c.Time(OpCache)()
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.SessionsCreated.Inc()
	r.ChoicesRecorded.WithLabelValues("green").Add(3)
	r.Results.WithLabelValues("winners").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.SessionsCreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ChoicesRecorded.WithLabelValues("green")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `chartbracket_choices_recorded_total{verdict="green"} 3`)
	assert.Contains(t, rec.Body.String(), `chartbracket_results_total{phase="winners"} 1`)
}
