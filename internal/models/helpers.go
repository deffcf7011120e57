// Package models defines the charts, verdicts and session results shared across
// the collector, the store, the HTTP API and the CLI.
package models

import (
	"fmt"
	"strconv"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ChoiceTable is the store table holding verdicts.
const ChoiceTable = "choice"

// ChoiceKey is the record key of a verdict: one record per chart per session,
// so a retried write lands on the same record.
func ChoiceKey(sessionID string, chartIndex int) string {
	return sessionID + "_" + strconv.Itoa(chartIndex)
}

// ParseChoiceKey splits a stored choice record id back into its session and
// chart index. Session ids may themselves contain underscores; the index is
// always after the last one.
func ParseChoiceKey(id surrealmodels.RecordID) (sessionID string, chartIndex int, err error) {
	if id.Table != ChoiceTable {
		return "", 0, fmt.Errorf("record %s is not a choice", id.Table)
	}
	key, ok := id.ID.(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected choice key type: %T (expected string)", id.ID)
	}
	i := strings.LastIndexByte(key, '_')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed choice key %q", key)
	}
	chartIndex, err = strconv.Atoi(key[i+1:])
	if err != nil || chartIndex < 0 {
		return "", 0, fmt.Errorf("malformed choice key %q", key)
	}
	return key[:i], chartIndex, nil
}
