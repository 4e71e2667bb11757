// Package outbox implements the transactional outbox: integration events are
// written in the same database transaction as the order mutation that caused
// them, then drained by the relay and published to the message transport.
package outbox

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	// StatusCreated — inserted, waiting for a relay to claim it.
	StatusCreated Status = "CREATED"
	// StatusInProgress — claimed by a relay instance; reclaimable after the
	// claim lease expires, so a crashed relay cannot strand a row.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusPublished — acknowledged by the transport. Terminal.
	StatusPublished Status = "PUBLISHED"
	// StatusFailed — retry budget exhausted. Terminal until operator action.
	StatusFailed Status = "FAILED"
)

func (s Status) String() string {
	return string(s)
}

// Event is one outbox row. Payload is immutable once written.
type Event struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	EventType     string
	Payload       []byte
	Status        Status
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	ClaimedAt     *time.Time
	NextAttemptAt time.Time
	PublishedAt   *time.Time
}

// NewEvent builds a CREATED record ready to be saved alongside the order
// mutation. The id doubles as the consumer-side de-duplication key.
func NewEvent(orderID uuid.UUID, eventType string, payload []byte) (Event, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Event{}, err
	}
	now := time.Now().UTC()
	return Event{
		ID:            id,
		OrderID:       orderID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusCreated,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}
