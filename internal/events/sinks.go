// Package events fans ledger notifications out to metrics and a durable
// outbox, and delivers outbox entries to a webhook endpoint.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

// Sink matches ledger.EventSink.
type Sink interface {
	PaymentRecorded(ctx context.Context, event domain.PaymentRecorded)
}

type multiSink []Sink

// Multi returns a sink that forwards to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) PaymentRecorded(ctx context.Context, event domain.PaymentRecorded) {
	for _, s := range m {
		s.PaymentRecorded(ctx, event)
	}
}

type outboxWriter interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
}

// OutboxSink stores each notification as a pending outbox event. A write
// failure is logged and dropped: the payment itself is already committed.
type OutboxSink struct {
	repo outboxWriter
	now  func() time.Time
}

func NewOutboxSink(repo outboxWriter) *OutboxSink {
	return &OutboxSink{repo: repo, now: time.Now}
}

func (s *OutboxSink) PaymentRecorded(ctx context.Context, event domain.PaymentRecorded) {
	log := logging.FromContext(ctx)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn("failed to encode outbox payload", "payment_id", event.ID, "error", err)
		return
	}

	e := &domain.OutboxEvent{
		ID:        uuid.New(),
		PaymentID: event.ID,
		EventType: domain.OutboxEventTypePaymentRecorded,
		Payload:   payload,
		RequestID: logging.RequestID(ctx),
		Status:    domain.OutboxEventStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		log.Warn("failed to enqueue outbox event", "payment_id", event.ID, "error", err)
	}
}
