package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ordering-service/internal/idempotency"
	"github.com/vasiliy-maslov/ordering-service/internal/outbox"
)

// maxTransitionRetries bounds optimistic-concurrency retries before the
// caller gets a conflict error.
const maxTransitionRetries = 3

// TxManager is the unit-of-work boundary: everything persisted inside fn
// commits or rolls back as one atomic operation.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CreateOrderItem struct {
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   float64
	Discount    float64
	PictureURL  string
	Units       int
}

type CreateOrderCommand struct {
	RequestID uuid.UUID // client-supplied idempotency token
	BuyerID   uuid.UUID
	BuyerName string
	Address   Address
	Payment   PaymentMethod
	Items     []CreateOrderItem
}

// Service is the command layer: one method per use case. Every method applies
// exactly one aggregate mutation and persists it atomically together with the
// derived outbox rows and the idempotency record.
type Service interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, error)
	SetAwaitingValidation(ctx context.Context, orderID, requestID uuid.UUID) (Status, error)
	ConfirmStock(ctx context.Context, orderID, requestID uuid.UUID, rejectedProductIDs []uuid.UUID) (Status, error)
	MarkPaid(ctx context.Context, orderID, requestID uuid.UUID) (Status, error)
	MarkShipped(ctx context.Context, orderID, requestID uuid.UUID) (Status, error)
	CancelOrder(ctx context.Context, orderID, requestID uuid.UUID) (Status, error)
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*Order, error)
}

type service struct {
	orders   Repository
	outbox   outbox.Store
	requests idempotency.Log
	tx       TxManager
}

func NewService(orders Repository, outboxStore outbox.Store, requests idempotency.Log, tx TxManager) Service {
	return &service{
		orders:   orders,
		outbox:   outboxStore,
		requests: requests,
		tx:       tx,
	}
}

func (s *service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, error) {
	if cmd.RequestID == uuid.Nil {
		return nil, &ValidationError{Field: "request_id", Reason: "must not be nil"}
	}
	if len(cmd.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "order must contain at least one item"}
	}

	// Duplicate submission: answer with the original order, no side effects.
	prior, err := s.requests.Find(ctx, cmd.RequestID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to check request log: %w", err)
	}
	if prior != nil {
		log.Info().Stringer("request_id", cmd.RequestID).Stringer("order_id", prior.OrderID).Msg("service: duplicate create_order request, returning original order")
		return s.orders.GetByID(ctx, prior.OrderID)
	}

	o, err := NewOrder(cmd.BuyerID, cmd.BuyerName, cmd.Address, cmd.Payment)
	if err != nil {
		return nil, err
	}
	for _, item := range cmd.Items {
		if err := o.AddItem(item.ProductID, item.ProductName, item.UnitPrice, item.Discount, item.PictureURL, item.Units); err != nil {
			return nil, err
		}
	}

	records, err := IntegrationEvents(o.Events())
	if err != nil {
		return nil, fmt.Errorf("service: failed to build integration events: %w", err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if err := s.outbox.Save(ctx, records...); err != nil {
			return err
		}
		return s.requests.Record(ctx, idempotency.ClientRequest{
			ID:      cmd.RequestID,
			Name:    "create_order",
			OrderID: o.ID(),
			Status:  string(o.Status()),
			Time:    time.Now().UTC(),
		})
	})
	if err != nil {
		// Lost a race against a concurrent submission of the same token:
		// the other transaction won, return its order.
		if errors.Is(err, idempotency.ErrDuplicateRequest) {
			prior, findErr := s.requests.Find(ctx, cmd.RequestID)
			if findErr != nil || prior == nil {
				return nil, fmt.Errorf("service: failed to resolve duplicate request %s: %w", cmd.RequestID, err)
			}
			return s.orders.GetByID(ctx, prior.OrderID)
		}
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID()).Stringer("buyer_id", o.BuyerID()).Msg("service: order created")
	return o, nil
}

func (s *service) SetAwaitingValidation(ctx context.Context, orderID, requestID uuid.UUID) (Status, error) {
	return s.transition(ctx, orderID, requestID, "set_awaiting_validation", func(o *Order) error {
		return o.SetAwaitingValidationStatus()
	})
}

func (s *service) ConfirmStock(ctx context.Context, orderID, requestID uuid.UUID, rejectedProductIDs []uuid.UUID) (Status, error) {
	if len(rejectedProductIDs) > 0 {
		return s.transition(ctx, orderID, requestID, "reject_stock", func(o *Order) error {
			return o.SetStockRejectedStatus(rejectedProductIDs)
		})
	}
	return s.transition(ctx, orderID, requestID, "confirm_stock", func(o *Order) error {
		return o.SetStockConfirmedStatus()
	})
}

func (s *service) MarkPaid(ctx context.Context, orderID, requestID uuid.UUID) (Status, error) {
	return s.transition(ctx, orderID, requestID, "mark_paid", func(o *Order) error {
		return o.SetPaidStatus()
	})
}

func (s *service) MarkShipped(ctx context.Context, orderID, requestID uuid.UUID) (Status, error) {
	return s.transition(ctx, orderID, requestID, "mark_shipped", func(o *Order) error {
		return o.SetShippedStatus()
	})
}

func (s *service) CancelOrder(ctx context.Context, orderID, requestID uuid.UUID) (Status, error) {
	return s.transition(ctx, orderID, requestID, "cancel_order", func(o *Order) error {
		return o.SetCancelledStatus()
	})
}

func (s *service) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*Order, error) {
	orders, err := s.orders.GetByBuyerID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch buyer orders: %w", err)
	}
	return orders, nil
}

// transition runs one status command: load the order, apply exactly one
// aggregate method, commit the new state together with the outbox rows and
// the idempotency record. Version conflicts re-read and retry a bounded
// number of times so two racing commands cannot both act on the same prior
// status.
func (s *service) transition(ctx context.Context, orderID, requestID uuid.UUID, name string, mutate func(*Order) error) (Status, error) {
	if requestID != uuid.Nil {
		prior, err := s.requests.Find(ctx, requestID)
		if err != nil {
			return "", fmt.Errorf("service: failed to check request log: %w", err)
		}
		if prior != nil {
			// The recorded status is the original command's result; the
			// order's current status may have moved on since.
			log.Info().Stringer("request_id", requestID).Str("command", name).Msg("service: duplicate request, returning prior result")
			return Status(prior.Status), nil
		}
	}

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("service: failed to load order %s: %w", orderID, err)
		}

		if err := mutate(o); err != nil {
			var transitionErr *TransitionError
			if errors.As(err, &transitionErr) {
				log.Warn().
					Stringer("order_id", orderID).
					Stringer("current_status", transitionErr.From).
					Stringer("attempted_status", transitionErr.Attempted).
					Str("command", name).
					Msg("service: invalid status transition attempt")
			}
			return "", err
		}

		records, err := IntegrationEvents(o.Events())
		if err != nil {
			return "", fmt.Errorf("service: failed to build integration events: %w", err)
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.orders.Update(ctx, o); err != nil {
				return err
			}
			if err := s.outbox.Save(ctx, records...); err != nil {
				return err
			}
			if requestID == uuid.Nil {
				return nil
			}
			return s.requests.Record(ctx, idempotency.ClientRequest{
				ID:      requestID,
				Name:    name,
				OrderID: orderID,
				Status:  string(o.Status()),
				Time:    time.Now().UTC(),
			})
		})
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				log.Warn().Stringer("order_id", orderID).Str("command", name).Int("attempt", attempt+1).Msg("service: version conflict, retrying")
				continue
			}
			if errors.Is(err, idempotency.ErrDuplicateRequest) {
				// A concurrent retry with the same token committed first:
				// answer with what it recorded.
				prior, findErr := s.requests.Find(ctx, requestID)
				if findErr != nil || prior == nil {
					return "", fmt.Errorf("service: failed to resolve duplicate request %s: %w", requestID, err)
				}
				return Status(prior.Status), nil
			}
			return "", fmt.Errorf("service: failed to commit %s for order %s: %w", name, orderID, err)
		}

		log.Info().Stringer("order_id", orderID).Stringer("status", o.Status()).Str("command", name).Msg("service: order status updated")
		return o.Status(), nil
	}

	return "", ErrConflict
}
