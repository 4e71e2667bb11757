package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusSubmitted          Status = "SUBMITTED"
	StatusAwaitingValidation Status = "AWAITING_VALIDATION"
	StatusStockConfirmed     Status = "STOCK_CONFIRMED"
	StatusPaid               Status = "PAID"
	StatusShipped            Status = "SHIPPED"
	StatusCancelled          Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// allowedTransitions is the whole state machine in one place. A transition
// absent from the map is forbidden, full stop.
var allowedTransitions = map[Status]map[Status]bool{
	StatusSubmitted: {
		StatusAwaitingValidation: true,
		StatusCancelled:          true,
	},
	StatusAwaitingValidation: {
		StatusStockConfirmed: true,
		StatusCancelled:      true,
	},
	StatusStockConfirmed: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusShipped: true,
	},
	StatusShipped:   {},
	StatusCancelled: {},
}

// Address is a value object: compared by value, never mutated after creation.
type Address struct {
	Street  string
	City    string
	State   string
	Country string
	ZipCode string
}

func NewAddress(street, city, state, country, zipCode string) (Address, error) {
	if street == "" {
		return Address{}, &ValidationError{Field: "street", Reason: "must not be empty"}
	}
	if city == "" {
		return Address{}, &ValidationError{Field: "city", Reason: "must not be empty"}
	}
	if country == "" {
		return Address{}, &ValidationError{Field: "country", Reason: "must not be empty"}
	}
	if zipCode == "" {
		return Address{}, &ValidationError{Field: "zip_code", Reason: "must not be empty"}
	}
	return Address{Street: street, City: city, State: state, Country: country, ZipCode: zipCode}, nil
}

// PaymentMethod is the masked card descriptor captured at order creation.
// Write-once: there is no way to change it after NewOrder.
type PaymentMethod struct {
	CardTypeID     int
	CardNumber     string // masked, e.g. "************1881"
	CardHolderName string
	Expiration     time.Time
}

// Item is a line of the order. Items are owned by the Order and are only
// created or changed through AddItem.
type Item struct {
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   float64
	Discount    float64
	PictureURL  string
	Units       int
}

func (i Item) total() float64 {
	return float64(i.Units) * (i.UnitPrice - i.Discount)
}

// Order is the aggregate root. All fields are unexported: the only way to
// change an order is through the transition methods below, and every
// successful transition stages exactly one domain event.
type Order struct {
	id            uuid.UUID
	buyerID       uuid.UUID
	buyerName     string
	address       Address
	paymentMethod PaymentMethod
	orderDate     time.Time
	status        Status
	items         []Item
	version       int

	events []Event
}

// NewOrder creates an order in SUBMITTED status and stages the StartedEvent.
func NewOrder(buyerID uuid.UUID, buyerName string, address Address, payment PaymentMethod) (*Order, error) {
	if buyerID == uuid.Nil {
		return nil, &ValidationError{Field: "buyer_id", Reason: "must not be nil"}
	}
	if buyerName == "" {
		return nil, &ValidationError{Field: "buyer_name", Reason: "must not be empty"}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("order: failed to generate order id: %w", err)
	}

	o := &Order{
		id:            id,
		buyerID:       buyerID,
		buyerName:     buyerName,
		address:       address,
		paymentMethod: payment,
		orderDate:     time.Now().UTC(),
		status:        StatusSubmitted,
	}
	o.stage(StartedEvent{OrderID: id, BuyerID: buyerID, BuyerName: buyerName})

	return o, nil
}

// rehydrate rebuilds an order from storage without staging any events.
func rehydrate(id, buyerID uuid.UUID, buyerName string, address Address, payment PaymentMethod, orderDate time.Time, status Status, items []Item, version int) *Order {
	return &Order{
		id:            id,
		buyerID:       buyerID,
		buyerName:     buyerName,
		address:       address,
		paymentMethod: payment,
		orderDate:     orderDate,
		status:        status,
		items:         items,
		version:       version,
	}
}

func (o *Order) ID() uuid.UUID                { return o.id }
func (o *Order) BuyerID() uuid.UUID           { return o.buyerID }
func (o *Order) BuyerName() string            { return o.buyerName }
func (o *Order) Address() Address             { return o.address }
func (o *Order) PaymentMethod() PaymentMethod { return o.paymentMethod }
func (o *Order) OrderDate() time.Time         { return o.orderDate }
func (o *Order) Status() Status               { return o.status }
func (o *Order) Version() int                 { return o.version }

// Items returns a copied snapshot, never the live slice.
func (o *Order) Items() []Item {
	items := make([]Item, len(o.items))
	copy(items, o.items)
	return items
}

// Total is the sum over all lines of units * (unit price - discount).
func (o *Order) Total() float64 {
	total := 0.0
	for _, item := range o.items {
		total += item.total()
	}
	return total
}

// AddItem merges into an existing line when the product is already ordered
// (summing units and keeping the larger discount), otherwise appends a line.
func (o *Order) AddItem(productID uuid.UUID, productName string, unitPrice, discount float64, pictureURL string, units int) error {
	if units <= 0 {
		return &ValidationError{Field: "units", Reason: fmt.Sprintf("must be greater than zero, got %d", units)}
	}
	if productID == uuid.Nil {
		return &ValidationError{Field: "product_id", Reason: "must not be nil"}
	}
	if unitPrice < 0 {
		return &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}

	for i := range o.items {
		if o.items[i].ProductID == productID {
			o.items[i].Units += units
			if discount > o.items[i].Discount {
				o.items[i].Discount = discount
			}
			return nil
		}
	}

	o.items = append(o.items, Item{
		ProductID:   productID,
		ProductName: productName,
		UnitPrice:   unitPrice,
		Discount:    discount,
		PictureURL:  pictureURL,
		Units:       units,
	})
	return nil
}

// SetAwaitingValidationStatus moves SUBMITTED -> AWAITING_VALIDATION.
func (o *Order) SetAwaitingValidationStatus() error {
	if err := o.transitionTo(StatusAwaitingValidation); err != nil {
		return err
	}
	o.stage(AwaitingValidationEvent{OrderID: o.id, BuyerID: o.buyerID, Total: o.Total()})
	return nil
}

// SetStockConfirmedStatus moves AWAITING_VALIDATION -> STOCK_CONFIRMED.
func (o *Order) SetStockConfirmedStatus() error {
	if err := o.transitionTo(StatusStockConfirmed); err != nil {
		return err
	}
	o.stage(StockConfirmedEvent{OrderID: o.id, BuyerID: o.buyerID})
	return nil
}

// SetStockRejectedStatus cancels an order awaiting validation because some
// items are out of stock. The rejected product ids travel on the event so
// downstream services can tell the buyer what failed.
func (o *Order) SetStockRejectedStatus(rejectedProductIDs []uuid.UUID) error {
	if o.status != StatusAwaitingValidation {
		return &TransitionError{OrderID: o.id, From: o.status, Attempted: StatusCancelled}
	}
	o.status = StatusCancelled
	o.stage(StockRejectedEvent{OrderID: o.id, BuyerID: o.buyerID, RejectedProductIDs: rejectedProductIDs})
	return nil
}

// SetPaidStatus moves STOCK_CONFIRMED -> PAID. Payment can only be recorded
// after stock is confirmed; any other starting status is refused.
func (o *Order) SetPaidStatus() error {
	if err := o.transitionTo(StatusPaid); err != nil {
		return err
	}
	o.stage(PaidEvent{OrderID: o.id, BuyerID: o.buyerID, Total: o.Total()})
	return nil
}

// SetShippedStatus moves PAID -> SHIPPED.
func (o *Order) SetShippedStatus() error {
	if err := o.transitionTo(StatusShipped); err != nil {
		return err
	}
	o.stage(ShippedEvent{OrderID: o.id, BuyerID: o.buyerID})
	return nil
}

// SetCancelledStatus cancels the order unless it is already paid, shipped or
// cancelled. The returned error names the blocking status.
func (o *Order) SetCancelledStatus() error {
	if err := o.transitionTo(StatusCancelled); err != nil {
		return err
	}
	o.stage(CancelledEvent{OrderID: o.id, BuyerID: o.buyerID})
	return nil
}

func (o *Order) transitionTo(next Status) error {
	if !allowedTransitions[o.status][next] {
		return &TransitionError{OrderID: o.id, From: o.status, Attempted: next}
	}
	o.status = next
	return nil
}

func (o *Order) stage(e Event) {
	o.events = append(o.events, e)
}

// Events returns the staged domain events and clears them. The unit of work
// is the only intended consumer; events staged by a failed transition never
// exist because failed transitions return before staging.
func (o *Order) Events() []Event {
	events := o.events
	o.events = nil
	return events
}
