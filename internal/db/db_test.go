//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

var testDB *Client
var testMetrics *metrics.Collector
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	// Start SurrealDB container
	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testMetrics = metrics.NewCollector()
	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, testMetrics)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testChoice(session string, index int, v models.Verdict) models.Choice {
	return models.Choice{
		SessionID:  session,
		ChartIndex: index,
		Chart: models.ChartRef{
			Symbol:      fmt.Sprintf("TKN%d/USDT", index),
			Name:        fmt.Sprintf("Token %d", index),
			PairAddress: fmt.Sprintf("0xpair%d", index),
			Price:       "1.25",
			Change24h:   "-3.5",
		},
		Verdict: v,
	}
}

// =============================================================================
// CHOICE TESTS
// =============================================================================

func TestCreateChoice(t *testing.T) {
	ctx := context.Background()

	got, err := testDB.CreateChoice(ctx, testChoice("create-1", 0, models.VerdictGreen))
	require.NoError(t, err)

	assert.Equal(t, "create-1", got.SessionID)
	assert.Equal(t, models.VerdictGreen, got.Verdict)
	assert.Equal(t, "TKN0/USDT", got.Chart.Symbol)
	require.NotNil(t, got.ID)
	session, index, err := models.ParseChoiceKey(*got.ID)
	require.NoError(t, err)
	assert.Equal(t, "create-1", session)
	assert.Equal(t, 0, index)
	assert.False(t, got.Timestamp.IsZero())
}

func TestCreateChoice_RetryReplaces(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.CreateChoice(ctx, testChoice("retry-1", 0, models.VerdictGreen))
	require.NoError(t, err)
	_, err = testDB.CreateChoice(ctx, testChoice("retry-1", 0, models.VerdictRed))
	require.NoError(t, err)

	choices, err := testDB.ListChoices(ctx, "retry-1")
	require.NoError(t, err)
	require.Len(t, choices, 1)
	assert.Equal(t, models.VerdictRed, choices[0].Verdict)
}

func TestSessionResults(t *testing.T) {
	ctx := context.Background()

	verdicts := []models.Verdict{models.VerdictRed, models.VerdictGreen, models.VerdictGreen}
	// Written out of order on purpose; results come back in chart order.
	for _, i := range []int{2, 0, 1} {
		_, err := testDB.CreateChoice(ctx, testChoice("results-1", i, verdicts[i]))
		require.NoError(t, err)
	}

	res, err := testDB.SessionResults(ctx, "results-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCharts)
	assert.Equal(t, 2, res.GreenCount)
	assert.Equal(t, 1, res.RedCount)
	for i, c := range res.Choices {
		assert.Equal(t, i, c.ChartIndex)
	}

	_, err = testDB.SessionResults(ctx, "no-such-session")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRanking(t *testing.T) {
	ctx := context.Background()

	rec, err := testDB.GetRanking(ctx, "ranking-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	err = testDB.SaveRanking(ctx, models.RankingRecord{
		SessionID: "ranking-1",
		Places: []models.ChartRef{
			{Symbol: "A/USDT", Price: "1", Change24h: "0"},
			{Symbol: "B/USDT", Price: "2", Change24h: "0"},
			{Symbol: "C/USDT", Price: "3", Change24h: "0"},
		},
		Rounds:  7,
		Rematch: true,
	})
	require.NoError(t, err)

	rec, err = testDB.GetRanking(ctx, "ranking-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Places, 3)
	assert.Equal(t, "A/USDT", rec.Places[0].Symbol)
	assert.Equal(t, 7, rec.Rounds)
	assert.True(t, rec.Rematch)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()

	for i := range 3 {
		_, err := testDB.CreateChoice(ctx, testChoice("delete-1", i, models.VerdictGreen))
		require.NoError(t, err)
	}
	require.NoError(t, testDB.SaveRanking(ctx, models.RankingRecord{SessionID: "delete-1"}))

	n, err := testDB.DeleteSession(ctx, "delete-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	choices, err := testDB.ListChoices(ctx, "delete-1")
	require.NoError(t, err)
	assert.Empty(t, choices)

	rec, err := testDB.GetRanking(ctx, "delete-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestQueryMetricsRecorded(t *testing.T) {
	require.NoError(t, testDB.Ping(context.Background()))

	snap := testMetrics.Snapshot()
	require.NotNil(t, snap.DBQuery)
	assert.Positive(t, snap.DBQuery.Count)
}
