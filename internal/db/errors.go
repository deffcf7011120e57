package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrAlreadyExists means a unique index rejected the write.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict means a concurrent write touched the same record.
	// Writes that hit it are retried by withRetry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested session has no stored records.
	ErrNotFound = errors.New("not found")
)

// queryErrors maps fragments of SurrealDB query error messages to sentinels.
var queryErrors = []struct {
	fragment string
	sentinel error
}{
	{"already exists", ErrAlreadyExists},
	{"already contains", ErrAlreadyExists},
	{"Transaction conflict", ErrTransactionConflict},
	{"Resource busy", ErrTransactionConflict},
}

// wrapQueryError tags database-level errors with their sentinel. Transport
// errors and unknown messages are returned as is.
func wrapQueryError(err error) error {
	var queryErr *surrealdb.QueryError
	if err == nil || !errors.As(err, &queryErr) {
		return err
	}
	for _, qe := range queryErrors {
		if strings.Contains(queryErr.Message, qe.fragment) {
			return fmt.Errorf("%w: %s", qe.sentinel, queryErr.Message)
		}
	}
	return err
}

const (
	conflictRetries = 3
	conflictBackoff = 20 * time.Millisecond
)

// withRetry runs fn again while it fails with ErrTransactionConflict, backing
// off linearly. Other errors and ctx cancellation end it at once.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := range conflictRetries {
		if err = fn(); !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * conflictBackoff):
		}
	}
	return err
}
