package order

import (
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ordering-service/internal/outbox"
)

// Integration event payloads published to other services. ID is the outbox
// row id and is the consumer-side de-duplication key; everything else is the
// minimal data downstream services need.

type OrderStartedIntegrationEvent struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	BuyerName string    `json:"buyer_name"`
}

type OrderAwaitingValidationIntegrationEvent struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
	Total   float64   `json:"total"`
}

type OrderStockConfirmedIntegrationEvent struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
}

type OrderStockRejectedIntegrationEvent struct {
	ID                 uuid.UUID   `json:"id"`
	OrderID            uuid.UUID   `json:"order_id"`
	BuyerID            uuid.UUID   `json:"buyer_id"`
	RejectedProductIDs []uuid.UUID `json:"rejected_product_ids"`
}

type OrderPaidIntegrationEvent struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
	Total   float64   `json:"total"`
}

type OrderShippedIntegrationEvent struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
}

type OrderCancelledIntegrationEvent struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
}

// IntegrationEvents translates the staged domain events into outbox records,
// one row per event, in staging order. The mapping is a closed switch over
// the sealed event set: adding a domain event without a case here is a bug
// surfaced at runtime, not a silently dropped notification.
func IntegrationEvents(events []Event) ([]outbox.Event, error) {
	records := make([]outbox.Event, 0, len(events))
	for _, e := range events {
		rec, err := integrationEvent(e)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func integrationEvent(e Event) (outbox.Event, error) {
	switch ev := e.(type) {
	case StartedEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderStartedIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID, BuyerName: ev.BuyerName}
		})
	case AwaitingValidationEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderAwaitingValidationIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID, Total: ev.Total}
		})
	case StockConfirmedEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderStockConfirmedIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID}
		})
	case StockRejectedEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderStockRejectedIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID, RejectedProductIDs: ev.RejectedProductIDs}
		})
	case PaidEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderPaidIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID, Total: ev.Total}
		})
	case ShippedEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderShippedIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID}
		})
	case CancelledEvent:
		return buildRecord(ev.OrderID, ev.Kind(), func(id uuid.UUID) any {
			return OrderCancelledIntegrationEvent{ID: id, OrderID: ev.OrderID, BuyerID: ev.BuyerID}
		})
	default:
		return outbox.Event{}, fmt.Errorf("order: no integration event mapping for domain event %T", e)
	}
}

func buildRecord(orderID uuid.UUID, kind EventKind, payload func(id uuid.UUID) any) (outbox.Event, error) {
	rec, err := outbox.NewEvent(orderID, string(kind), nil)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("order: failed to create outbox event: %w", err)
	}

	body, err := json.Marshal(payload(rec.ID))
	if err != nil {
		return outbox.Event{}, fmt.Errorf("order: failed to marshal %s payload: %w", kind, err)
	}
	rec.Payload = body

	return rec, nil
}
