// Package idempotency records processed client requests so a retried command
// with the same token is answered with the original result instead of being
// executed twice. The record is inserted in the same transaction as the
// order mutation it guards.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ordering-service/internal/db"
)

var ErrDuplicateRequest = errors.New("request with this token was already processed")

// ClientRequest is one processed command. OrderID and Status let the caller
// rebuild the original response for a duplicate submission, even when the
// order has moved on since.
type ClientRequest struct {
	ID      uuid.UUID // the client-supplied idempotency token
	Name    string    // command name, e.g. "create_order"
	OrderID uuid.UUID
	Status  string // order status the original command resulted in
	Time    time.Time
}

type Log interface {
	// Find returns the previously recorded request for the token, or nil.
	Find(ctx context.Context, token uuid.UUID) (*ClientRequest, error)
	// Record inserts the request on the unit-of-work transaction. A token
	// that was recorded concurrently surfaces as ErrDuplicateRequest.
	Record(ctx context.Context, req ClientRequest) error
}

type postgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) Log {
	return &postgresLog{pool: pool}
}

func (l *postgresLog) Find(ctx context.Context, token uuid.UUID) (*ClientRequest, error) {
	q := db.QuerierFrom(ctx, l.pool)

	query := `
		SELECT id, name, order_id, status, time
		FROM client_requests
		WHERE id = $1
	`

	var req ClientRequest
	err := q.QueryRow(ctx, query, token).Scan(&req.ID, &req.Name, &req.OrderID, &req.Status, &req.Time)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency: failed to look up request %s: %w", token, err)
	}
	return &req, nil
}

func (l *postgresLog) Record(ctx context.Context, req ClientRequest) error {
	q := db.QuerierFrom(ctx, l.pool)

	query := `
		INSERT INTO client_requests (id, name, order_id, status, time)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.Exec(ctx, query, req.ID, req.Name, req.OrderID, req.Status, req.Time)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("idempotency: failed to record request %s: %w", req.ID, err)
	}
	return nil
}
