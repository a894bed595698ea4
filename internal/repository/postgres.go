// Package repository содержит журнал попыток бронирования в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/autoecole-booking/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrAttemptNotFound возвращается, если попытки с таким ключом нет в журнале.
	ErrAttemptNotFound = errors.New("flow attempt not found")
	// ErrEmptyKey возвращается при записи попытки без ключа идемпотентности.
	ErrEmptyKey = errors.New("idempotency key is empty")
)

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresJournal хранит попытки бронирования, чтобы брошенные бронирования
// в статусе PENDING можно было найти и разобрать.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresJournal подключается к БД и применяет миграции.
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &PostgresJournal{pool: pool, delays: defaultRetryDelays}

	if err := j.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return j, nil
}

func (j *PostgresJournal) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(j.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}

// Record сохраняет попытку. Повторная запись с тем же ключом обновляет статус,
// при этом уже известные номер бронирования и способ оплаты не затираются пустыми.
func (j *PostgresJournal) Record(ctx context.Context, a model.FlowAttempt) error {
	if a.IdempotencyKey == "" {
		return ErrEmptyKey
	}

	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return withRetry(ctx, j.delays, func() error {
		_, err := j.pool.Exec(ctx,
			`INSERT INTO flow_attempts
			   (idempotency_key, user_id, school_id, offer_id, booking_date, time_slot,
			    booking_id, status, payment_method, last_error, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			 ON CONFLICT (idempotency_key) DO UPDATE SET
			   booking_id     = COALESCE(NULLIF(EXCLUDED.booking_id, ''), flow_attempts.booking_id),
			   status         = EXCLUDED.status,
			   payment_method = COALESCE(NULLIF(EXCLUDED.payment_method, ''), flow_attempts.payment_method),
			   last_error     = EXCLUDED.last_error,
			   updated_at     = EXCLUDED.updated_at`,
			a.IdempotencyKey, a.UserID, a.SchoolID, a.OfferID, a.Date, a.Time,
			a.BookingID, string(a.Status), string(a.PaymentMethod), a.LastError, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert flow attempt: %w", err)
		}
		return nil
	})
}

const selectAttempt = `SELECT idempotency_key, user_id, school_id, offer_id, booking_date, time_slot,
        booking_id, status, payment_method, last_error, created_at, updated_at
   FROM flow_attempts`

// Get возвращает попытку по ключу идемпотентности.
func (j *PostgresJournal) Get(ctx context.Context, key string) (model.FlowAttempt, error) {
	row := j.pool.QueryRow(ctx, selectAttempt+` WHERE idempotency_key = $1`, key)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FlowAttempt{}, ErrAttemptNotFound
		}
		return model.FlowAttempt{}, fmt.Errorf("get flow attempt: %w", err)
	}
	return a, nil
}

// ListOrphans возвращает попытки, оставившие на сервере неподтверждённое
// бронирование и не обновлявшиеся дольше olderThan.
func (j *PostgresJournal) ListOrphans(ctx context.Context, olderThan time.Duration) ([]model.FlowAttempt, error) {
	cutoff := time.Now().Add(-olderThan)

	rows, err := j.pool.Query(ctx,
		selectAttempt+`
		 WHERE booking_id <> '' AND status = ANY($1) AND updated_at < $2
		 ORDER BY updated_at`,
		orphanStatuses(), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("select orphans: %w", err)
	}
	defer rows.Close()

	var res []model.FlowAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flow attempt: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// orphanStatuses возвращает статусы, при которых созданное бронирование осталось неоплаченным.
func orphanStatuses() []string {
	return []string{
		string(model.FlowStatusPending),
		string(model.FlowStatusAbandoned),
		string(model.FlowStatusFailed),
	}
}

func scanAttempt(row pgx.Row) (model.FlowAttempt, error) {
	var (
		a      model.FlowAttempt
		status string
		method string
	)
	err := row.Scan(&a.IdempotencyKey, &a.UserID, &a.SchoolID, &a.OfferID, &a.Date, &a.Time,
		&a.BookingID, &status, &method, &a.LastError, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.FlowAttempt{}, err
	}
	a.Status = model.FlowStatus(status)
	a.PaymentMethod = model.PaymentMethod(method)
	return a, nil
}

func withRetry(ctx context.Context, delays []time.Duration, fn func() error) error {
	var err error

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// isRetryable отбирает временные ошибки: конфликты сериализации, взаимные блокировки и обрывы соединения.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
