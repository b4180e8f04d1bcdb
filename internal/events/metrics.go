package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

var (
	paymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_payments_recorded_total",
		Help: "Payments committed to the ledger",
	})

	paymentValueRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_payment_value_recorded_total",
		Help: "Sum of recorded payment amounts in base units",
	})

	lastPaymentID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_last_payment_id",
		Help: "Id of the most recently recorded payment",
	})

	outboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_deliveries_total",
		Help: "Outbox webhook delivery attempts, labeled by result",
	}, []string{"result"})
)

// MetricsSink exports recorded payments as Prometheus metrics.
type MetricsSink struct{}

func (MetricsSink) PaymentRecorded(_ context.Context, event domain.PaymentRecorded) {
	paymentsRecorded.Inc()
	paymentValueRecorded.Add(float64(event.Amount))
	lastPaymentID.Set(float64(event.ID))
}
