package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/autoecole-booking/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), want: true},
		{name: "reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "syntax", err: errors.New("syntax error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	delays := []time.Duration{0, 0, 0}

	t.Run("retries transient until success", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), delays, func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after all delays", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), delays, func() error {
			calls++
			return errors.New("broken pipe")
		})
		require.Error(t, err)
		assert.Equal(t, len(delays)+1, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), delays, func() error {
			calls++
			return &pgconn.PgError{Code: pgerrcode.UndefinedTable}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("context error stops immediately", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), delays, func() error {
			calls++
			return fmt.Errorf("exec: %w", context.DeadlineExceeded)
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := withRetry(ctx, []time.Duration{time.Hour}, func() error {
			calls++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestOrphanStatuses(t *testing.T) {
	statuses := orphanStatuses()
	assert.Contains(t, statuses, string(model.FlowStatusPending))
	assert.Contains(t, statuses, string(model.FlowStatusAbandoned))
	assert.NotContains(t, statuses, string(model.FlowStatusConfirmed))
	assert.NotContains(t, statuses, string(model.FlowStatusStarted))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := migrationsFS.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "flow_attempts")
}

func TestRecord_EmptyKey(t *testing.T) {
	j := &PostgresJournal{}
	assert.ErrorIs(t, j.Record(context.Background(), model.FlowAttempt{}), ErrEmptyKey)
}

// Интеграционный тест запускается только при заданной TEST_DATABASE_URI.
func TestPostgresJournal_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	ctx := context.Background()
	j, err := NewPostgresJournal(ctx, dsn)
	require.NoError(t, err)
	defer j.Close()

	key := uuid.NewString()
	past := time.Now().Add(-2 * time.Hour)

	require.NoError(t, j.Record(ctx, model.FlowAttempt{
		IdempotencyKey: key, UserID: "u1", SchoolID: "s1", OfferID: "o1",
		Date: "2026-03-01", Time: "09:00", Status: model.FlowStatusStarted, UpdatedAt: past,
	}))
	require.NoError(t, j.Record(ctx, model.FlowAttempt{
		IdempotencyKey: key, UserID: "u1", SchoolID: "s1", OfferID: "o1",
		Date: "2026-03-01", Time: "09:00", BookingID: "b1", Status: model.FlowStatusPending, UpdatedAt: past,
	}))
	require.NoError(t, j.Record(ctx, model.FlowAttempt{
		IdempotencyKey: key, UserID: "u1", SchoolID: "s1", OfferID: "o1",
		Date: "2026-03-01", Time: "09:00", Status: model.FlowStatusAbandoned, LastError: "flow closed before payment", UpdatedAt: past,
	}))

	got, err := j.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BookingID, "booking id must survive an update without one")
	assert.Equal(t, model.FlowStatusAbandoned, got.Status)

	orphans, err := j.ListOrphans(ctx, time.Hour)
	require.NoError(t, err)

	found := false
	for _, o := range orphans {
		if o.IdempotencyKey == key {
			found = true
		}
	}
	assert.True(t, found)

	_, err = j.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
