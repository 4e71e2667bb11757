// Package relay drains the outbox in the background and publishes claimed
// events to the message transport. It is deliberately decoupled from request
// handling: a transport outage delays delivery but never fails a command.
package relay

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ordering-service/internal/outbox"
)

// Publisher is the only thing the relay knows about the transport. A nil
// error is a positive acknowledgment; anything else leaves the row retriable.
type Publisher interface {
	Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error
}

// topicPrefix namespaces every stream this service publishes to.
const topicPrefix = "ordering."

type Config struct {
	Interval  time.Duration
	BatchSize int
	Lease     time.Duration
}

type Relay struct {
	store     outbox.Store
	publisher Publisher
	cfg       Config
}

func New(store outbox.Store, publisher Publisher, cfg Config) *Relay {
	return &Relay{store: store, publisher: publisher, cfg: cfg}
}

// Run claims and publishes outbox batches on a fixed interval until the
// context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.cfg.Interval).Int("batch_size", r.cfg.BatchSize).Msg("Outbox relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				log.Error().Err(err).Msg("Outbox drain failed")
			}
		}
	}
}

// drain claims one batch and publishes it in claim order. Rows are only
// marked PUBLISHED on transport acknowledgment; a publish error sends the
// row through the backoff schedule instead.
func (r *Relay) drain(ctx context.Context) error {
	events, err := r.store.FetchPending(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return err
	}

	for _, e := range events {
		if err := r.publisher.Publish(ctx, topicPrefix+e.EventType, e.ID, e.Payload); err != nil {
			log.Warn().
				Err(err).
				Stringer("event_id", e.ID).
				Stringer("order_id", e.OrderID).
				Str("event_type", e.EventType).
				Int("attempts", e.Attempts).
				Msg("Failed to publish event")

			exhausted, markErr := r.store.MarkFailed(ctx, e.ID, err.Error())
			if markErr != nil {
				return markErr
			}
			if exhausted {
				// Operational alert: the row stays FAILED until someone acts.
				log.Error().
					Stringer("event_id", e.ID).
					Stringer("order_id", e.OrderID).
					Str("event_type", e.EventType).
					Str("last_error", err.Error()).
					Msg("Event delivery retries exhausted")
			}
			continue
		}

		if err := r.store.MarkPublished(ctx, e.ID); err != nil {
			return err
		}
	}

	return nil
}
