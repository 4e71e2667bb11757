package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ordering-service/internal/db"
)

// Repository persists the Order aggregate. Writes resolve the unit-of-work
// transaction from the context, so they commit together with the outbox rows
// and the idempotency record.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*Order, error)
	// Update writes the order's status guarded by the version column.
	// A concurrent writer shows up as ErrVersionConflict.
	Update(ctx context.Context, o *Order) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	q := db.QuerierFrom(ctx, r.pool)

	now := time.Now().UTC()

	queryOrder := `
		INSERT INTO orders (id, buyer_id, buyer_name, street, city, state, country, zip_code,
		                    card_type_id, card_number, card_holder_name, card_expiration,
		                    order_date, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := q.Exec(ctx, queryOrder,
		o.id,
		o.buyerID,
		o.buyerName,
		o.address.Street,
		o.address.City,
		o.address.State,
		o.address.Country,
		o.address.ZipCode,
		o.paymentMethod.CardTypeID,
		o.paymentMethod.CardNumber,
		o.paymentMethod.CardHolderName,
		o.paymentMethod.Expiration,
		o.orderDate,
		string(o.status),
		1,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order %s: %w", o.id, err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, product_name, unit_price, discount, picture_url, units)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, item := range o.items {
		_, err := q.Exec(ctx, queryItem,
			o.id,
			item.ProductID,
			item.ProductName,
			item.UnitPrice,
			item.Discount,
			item.PictureURL,
			item.Units,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.id, err)
		}
	}

	o.version = 1
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	q := db.QuerierFrom(ctx, r.pool)

	queryOrder := `
		SELECT id, buyer_id, buyer_name, street, city, state, country, zip_code,
		       card_type_id, card_number, card_holder_name, card_expiration,
		       order_date, status, version
		FROM orders
		WHERE id = $1
	`

	var (
		orderID   uuid.UUID
		buyerID   uuid.UUID
		buyerName string
		address   Address
		payment   PaymentMethod
		orderDate time.Time
		status    string
		version   int
	)
	err := q.QueryRow(ctx, queryOrder, id).Scan(
		&orderID,
		&buyerID,
		&buyerName,
		&address.Street,
		&address.City,
		&address.State,
		&address.Country,
		&address.ZipCode,
		&payment.CardTypeID,
		&payment.CardNumber,
		&payment.CardHolderName,
		&payment.Expiration,
		&orderDate,
		&status,
		&version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	items, err := r.itemsByOrderID(ctx, q, id)
	if err != nil {
		return nil, err
	}

	return rehydrate(orderID, buyerID, buyerName, address, payment, orderDate, Status(status), items, version), nil
}

func (r *postgresRepository) GetByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*Order, error) {
	q := db.QuerierFrom(ctx, r.pool)

	query := `
		SELECT id
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := q.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for buyer %s: %w", buyerID, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order id for buyer %s: %w", buyerID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for buyer %s: %w", buyerID, err)
	}

	orders := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *postgresRepository) Update(ctx context.Context, o *Order) error {
	q := db.QuerierFrom(ctx, r.pool)

	query := `
		UPDATE orders
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`
	cmdTag, err := q.Exec(ctx, query,
		string(o.status),
		time.Now().UTC(),
		o.id,
		o.version,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	o.version++
	return nil
}

func (r *postgresRepository) itemsByOrderID(ctx context.Context, q db.Querier, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT product_id, product_name, unit_price, discount, picture_url, units
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Discount,
			&item.PictureURL,
			&item.Units,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}

	return items, nil
}
