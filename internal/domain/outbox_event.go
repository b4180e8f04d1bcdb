package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxEventStatus string

const (
	OutboxEventStatusPending    OutboxEventStatus = "pending"
	OutboxEventStatusDispatched OutboxEventStatus = "dispatched"
	OutboxEventStatusFailed     OutboxEventStatus = "failed"
)

type OutboxEventType string

const (
	OutboxEventTypePaymentRecorded OutboxEventType = "payment.recorded"
)

// OutboxEvent is a ledger notification awaiting webhook delivery. RequestID
// is the id of the HTTP request that recorded the payment, if any.
type OutboxEvent struct {
	ID          uuid.UUID
	PaymentID   uint64
	EventType   OutboxEventType
	Payload     json.RawMessage
	RequestID   string
	Status      OutboxEventStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
