package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/chartbracket/internal/models"
)

// CreateChoice stores a verdict. Writing the same chart of a session twice
// replaces the earlier verdict. Transaction conflicts are retried.
func (c *Client) CreateChoice(ctx context.Context, choice models.Choice) (*models.Choice, error) {
	if choice.Timestamp.IsZero() {
		choice.Timestamp = time.Now().UTC()
	}

	var results *[]surrealdb.QueryResult[[]models.Choice]
	err := withRetry(ctx, func() error {
		var err error
		results, err = query[[]models.Choice](ctx, c, upsertChoiceSQL, map[string]any{
			"table":       models.ChoiceTable,
			"id":          models.ChoiceKey(choice.SessionID, choice.ChartIndex),
			"session_id":  choice.SessionID,
			"chart_index": choice.ChartIndex,
			"chart_data":  choice.Chart,
			"choice":      string(choice.Verdict),
			"timestamp":   choice.Timestamp,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create choice: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create choice: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

const upsertChoiceSQL = `
		UPSERT type::record($table, $id) SET
			session_id = $session_id,
			chart_index = $chart_index,
			chart_data = $chart_data,
			choice = $choice,
			timestamp = $timestamp
		RETURN AFTER
`

// ListChoices returns a session's verdicts in chart order.
func (c *Client) ListChoices(ctx context.Context, sessionID string) ([]models.Choice, error) {
	results, err := query[[]models.Choice](ctx, c, `
		SELECT * FROM choice WHERE session_id = $session_id ORDER BY chart_index ASC
	`, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Choice{}, nil
	}
	return (*results)[0].Result, nil
}

// SessionResults summarizes the stored verdicts of a session.
// Returns ErrNotFound if nothing was stored for it.
func (c *Client) SessionResults(ctx context.Context, sessionID string) (*models.SessionResult, error) {
	choices, err := c.ListChoices(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(choices) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	res := models.Summarize(sessionID, choices)
	return &res, nil
}

// SaveRanking stores the podium of a finished tournament, replacing any
// earlier one for the session.
func (c *Client) SaveRanking(ctx context.Context, rec models.RankingRecord) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	_, err := query[any](ctx, c, `
		UPSERT type::record("ranking", $session_id) SET
			session_id = $session_id,
			places = $places,
			rounds = $rounds,
			rematch = $rematch,
			completed_at = $completed_at
	`, map[string]any{
		"session_id":   rec.SessionID,
		"places":       rec.Places,
		"rounds":       rec.Rounds,
		"rematch":      rec.Rematch,
		"completed_at": rec.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("save ranking: %w", err)
	}
	return nil
}

// GetRanking retrieves the stored podium of a session.
// Returns nil if none was stored.
func (c *Client) GetRanking(ctx context.Context, sessionID string) (*models.RankingRecord, error) {
	results, err := query[[]models.RankingRecord](ctx, c, `
		SELECT * FROM type::record("ranking", $session_id)
	`, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("get ranking: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// DeleteSession removes every stored record of a session.
// Returns the number of deleted choices.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	results, err := query[[]models.Choice](ctx, c, `
		DELETE choice WHERE session_id = $session_id RETURN BEFORE
	`, map[string]any{"session_id": sessionID})
	if err != nil {
		return 0, fmt.Errorf("delete choices: %w", err)
	}

	if _, err := query[any](ctx, c, `
		DELETE type::record("ranking", $session_id)
	`, map[string]any{"session_id": sessionID}); err != nil {
		return 0, fmt.Errorf("delete ranking: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
