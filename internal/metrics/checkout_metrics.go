package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики конвейера checkout и сверки платежей.
type CheckoutMetrics struct {
	// Счётчики жизненного цикла заказа
	ordersCreated prometheus.Counter
	ordersPaid    prometheus.Counter
	ordersFailed  prometheus.Counter
	retriesTotal  prometheus.Counter

	// Несовпадения корзины по видам
	cartMismatches *prometheus.CounterVec

	// Сверка платежей
	reconcileDuration      prometheus.Histogram
	duplicateNotifications prometheus.Counter
	webhookRejected        prometheus.Counter

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_created_total",
			Help: "Total number of orders created by checkout or retry",
		}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_paid_total",
			Help: "Total number of orders transitioned to paid",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_failed_total",
			Help: "Total number of orders transitioned to failed",
		}),
		retriesTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_retries_total",
			Help: "Total number of retry attempts for failed orders",
		}),
		cartMismatches: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_cart_mismatches_total",
			Help: "Total number of cart mismatches by kind",
		}, []string{"kind"}),
		reconcileDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_reconcile_duration_seconds",
			Help:    "Duration of payment reconciliation transactions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		duplicateNotifications: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_duplicate_notifications_total",
			Help: "Total number of provider notifications resolved as already applied",
		}),
		webhookRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_rejected_total",
			Help: "Total number of webhook requests rejected by signature check",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderPaid увеличивает счётчик оплаченных заказов.
func (m *CheckoutMetrics) RecordOrderPaid() {
	m.ordersPaid.Inc()
}

// RecordOrderFailed увеличивает счётчик заказов, переведённых в failed.
func (m *CheckoutMetrics) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

// RecordRetry увеличивает счётчик попыток retry.
func (m *CheckoutMetrics) RecordRetry() {
	m.retriesTotal.Inc()
}

// RecordCartMismatch увеличивает счётчик несовпадений корзины по виду.
func (m *CheckoutMetrics) RecordCartMismatch(kind string) {
	m.cartMismatches.WithLabelValues(kind).Inc()
}

// RecordReconcileDuration записывает время транзакции сверки.
func (m *CheckoutMetrics) RecordReconcileDuration(duration time.Duration) {
	m.reconcileDuration.Observe(duration.Seconds())
}

// RecordDuplicateNotification увеличивает счётчик дублей уведомлений.
func (m *CheckoutMetrics) RecordDuplicateNotification() {
	m.duplicateNotifications.Inc()
}

// RecordWebhookRejected увеличивает счётчик отклонённых по подписи webhook-запросов.
func (m *CheckoutMetrics) RecordWebhookRejected() {
	m.webhookRejected.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
