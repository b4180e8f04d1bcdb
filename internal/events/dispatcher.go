package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventIDHeader   = "X-Webhook-Event-ID"
	RequestIDHeader = "X-Request-ID"

	defaultBatchSize = 10
	defaultInterval  = time.Second
)

type outboxRepository interface {
	GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error
}

type DispatcherConfig struct {
	URL         string
	Secret      string
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// Dispatcher polls the outbox and POSTs each pending event to the configured
// webhook URL. Events that keep failing are marked failed after MaxAttempts.
type Dispatcher struct {
	repo        outboxRepository
	url         string
	secret      string
	interval    time.Duration
	maxAttempts int
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewDispatcher(repo outboxRepository, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		repo:        repo,
		url:         cfg.URL,
		secret:      cfg.Secret,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started", "interval", d.interval, "url", d.url)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	events, err := d.repo.GetPending(ctx, defaultBatchSize)
	if err != nil {
		d.logger.Error("failed to fetch pending outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := d.process(ctx, event); err != nil {
			d.logger.Error("failed to process outbox event",
				"outbox_event_id", event.ID,
				"payment_id", event.PaymentID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, event domain.OutboxEvent) error {
	err := d.deliver(ctx, event)
	if err == nil {
		outboxDeliveries.WithLabelValues("delivered").Inc()
		return d.repo.UpdateStatus(ctx, event.ID, domain.OutboxEventStatusDispatched)
	}

	status := domain.OutboxEventStatusPending
	result := "retry"
	if event.Attempts+1 >= d.maxAttempts {
		status = domain.OutboxEventStatusFailed
		result = "failed"
	}
	outboxDeliveries.WithLabelValues(result).Inc()

	d.logger.Warn("outbox delivery failed",
		"outbox_event_id", event.ID,
		"attempt", event.Attempts+1,
		"next_status", status,
		"error", err,
	)
	if updateErr := d.repo.UpdateStatus(ctx, event.ID, status); updateErr != nil {
		return fmt.Errorf("process: %w", updateErr)
	}
	return nil
}

type webhookBody struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.OutboxEvent) error {
	body, err := json.Marshal(webhookBody{
		EventID:   event.ID.String(),
		EventType: string(event.EventType),
		CreatedAt: event.CreatedAt,
		Data:      event.Payload,
	})
	if err != nil {
		return fmt.Errorf("deliver: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deliver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventIDHeader, event.ID.String())
	req.Header.Set(SignatureHeader, Sign(body, d.secret))
	if event.RequestID != "" {
		req.Header.Set(RequestIDHeader, event.RequestID)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deliver: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is Sign(body, secret), in constant time.
func Verify(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
