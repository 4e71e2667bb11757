package order

import "github.com/gofrs/uuid"

// EventKind discriminates the closed set of domain events an order can raise.
type EventKind string

const (
	KindStarted            EventKind = "order_started"
	KindAwaitingValidation EventKind = "order_status_changed_to_awaiting_validation"
	KindStockConfirmed     EventKind = "order_stock_confirmed"
	KindStockRejected      EventKind = "order_stock_rejected"
	KindPaid               EventKind = "order_paid"
	KindShipped            EventKind = "order_shipped"
	KindCancelled          EventKind = "order_cancelled"
)

// Event is a sealed sum type: only the variants in this file implement it.
// Domain events live for the duration of one unit of work and are consumed
// exactly once via Order.Events().
type Event interface {
	Kind() EventKind
	isDomainEvent()
}

type StartedEvent struct {
	OrderID   uuid.UUID
	BuyerID   uuid.UUID
	BuyerName string
}

type AwaitingValidationEvent struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Total   float64
}

type StockConfirmedEvent struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

type StockRejectedEvent struct {
	OrderID            uuid.UUID
	BuyerID            uuid.UUID
	RejectedProductIDs []uuid.UUID
}

type PaidEvent struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Total   float64
}

type ShippedEvent struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

type CancelledEvent struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

func (StartedEvent) Kind() EventKind            { return KindStarted }
func (AwaitingValidationEvent) Kind() EventKind { return KindAwaitingValidation }
func (StockConfirmedEvent) Kind() EventKind     { return KindStockConfirmed }
func (StockRejectedEvent) Kind() EventKind      { return KindStockRejected }
func (PaidEvent) Kind() EventKind               { return KindPaid }
func (ShippedEvent) Kind() EventKind            { return KindShipped }
func (CancelledEvent) Kind() EventKind          { return KindCancelled }

func (StartedEvent) isDomainEvent()            {}
func (AwaitingValidationEvent) isDomainEvent() {}
func (StockConfirmedEvent) isDomainEvent()     {}
func (StockRejectedEvent) isDomainEvent()      {}
func (PaidEvent) isDomainEvent()               {}
func (ShippedEvent) isDomainEvent()            {}
func (CancelledEvent) isDomainEvent()          {}
