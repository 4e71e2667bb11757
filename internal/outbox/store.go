package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ordering-service/internal/db"
)

// Store is the persistence contract for outbox rows. Save must run on the
// unit-of-work transaction; the claim/mark methods run on their own
// connections because the relay lives outside any command.
type Store interface {
	Save(ctx context.Context, events ...Event) error
	FetchPending(ctx context.Context, batchSize int, lease time.Duration) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (exhausted bool, err error)
	CountFailed(ctx context.Context) (int, error)
}

type postgresStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
	backoffBase time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, maxAttempts int, backoffBase time.Duration) Store {
	return &postgresStore{pool: pool, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

func (s *postgresStore) Save(ctx context.Context, events ...Event) error {
	q := db.QuerierFrom(ctx, s.pool)

	query := `
		INSERT INTO integration_events (id, order_id, event_type, payload, status, attempts, created_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, e := range events {
		_, err := q.Exec(ctx, query,
			e.ID,
			e.OrderID,
			e.EventType,
			e.Payload,
			string(e.Status),
			e.Attempts,
			e.CreatedAt,
			e.NextAttemptAt,
		)
		if err != nil {
			return fmt.Errorf("outbox: failed to insert event %s for order %s: %w", e.ID, e.OrderID, err)
		}
	}
	return nil
}

// FetchPending atomically claims up to batchSize rows: CREATED rows whose
// next attempt is due, plus IN_PROGRESS rows whose claim lease expired
// (crash reclaim). SKIP LOCKED keeps two relay instances from claiming the
// same row; the conditional UPDATE is the claim itself, not a read-then-write.
func (s *postgresStore) FetchPending(ctx context.Context, batchSize int, lease time.Duration) ([]Event, error) {
	q := db.QuerierFrom(ctx, s.pool)

	// The lease cutoff is computed on the database clock, the same clock that
	// set claimed_at, so clock skew between relay instances cannot shift
	// lease expiry.
	query := `
		WITH due AS (
			SELECT id
			FROM integration_events
			WHERE (status = 'CREATED' AND next_attempt_at <= now())
			   OR (status = 'IN_PROGRESS' AND claimed_at < now() - make_interval(secs => $2))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE integration_events e
		SET status = 'IN_PROGRESS', claimed_at = now()
		FROM due
		WHERE e.id = due.id
		RETURNING e.id, e.order_id, e.event_type, e.payload, e.attempts, e.created_at, e.next_attempt_at
	`

	rows, err := q.Query(ctx, query, batchSize, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to claim pending events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e := Event{Status: StatusInProgress}
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Payload, &e.Attempts, &e.CreatedAt, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("outbox: failed to scan claimed event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: error iterating claimed events: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the subquery order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}

// MarkPublished is idempotent: a row that is no longer IN_PROGRESS is left
// untouched and no error is returned.
func (s *postgresStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	q := db.QuerierFrom(ctx, s.pool)

	query := `
		UPDATE integration_events
		SET status = 'PUBLISHED', published_at = now(), claimed_at = NULL
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`
	if _, err := q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("outbox: failed to mark event %s published: %w", id, err)
	}
	return nil
}

// MarkFailed returns the row to CREATED with an exponential next_attempt_at
// while the retry budget lasts, and parks it in terminal FAILED once the
// budget is exhausted. Idempotent on already-terminal rows.
func (s *postgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	q := db.QuerierFrom(ctx, s.pool)

	// attempts on the right-hand side is the pre-update value, so the backoff
	// delay is base * 2^attempts.
	query := `
		UPDATE integration_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_at = NULL,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'FAILED' ELSE 'CREATED' END,
		    next_attempt_at = now() + make_interval(secs => $4 * power(2, LEAST(attempts, 16)))
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING status
	`

	var status string
	err := q.QueryRow(ctx, query, id, reason, s.maxAttempts, s.backoffBase.Seconds()).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("outbox: failed to mark event %s failed: %w", id, err)
	}

	return Status(status) == StatusFailed, nil
}

func (s *postgresStore) CountFailed(ctx context.Context) (int, error) {
	q := db.QuerierFrom(ctx, s.pool)

	var count int
	err := q.QueryRow(ctx, `SELECT count(*) FROM integration_events WHERE status = 'FAILED'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("outbox: failed to count failed events: %w", err)
	}
	return count, nil
}
