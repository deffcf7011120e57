package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RankingRecord is the stored podium of a finished tournament.
type RankingRecord struct {
	ID          *surrealmodels.RecordID `json:"id,omitempty"`
	SessionID   string                  `json:"session_id"`
	Places      []ChartRef              `json:"places"`
	Rounds      int                     `json:"rounds"`
	Rematch     bool                    `json:"rematch"`
	CompletedAt time.Time               `json:"completed_at"`
}
