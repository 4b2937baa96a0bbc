package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// Notification — разобранное уведомление провайдера об итоге транзакции.
// RawPayload хранит исходные байты тела как есть.
type Notification struct {
	Reference   string
	Status      string
	AmountMinor int64
	RawPayload  []byte
}

// Dispatcher сводит оба канала подтверждения оплаты — асинхронный webhook
// и синхронную верификацию после редиректа — в одну транзакцию сверки.
// Собственного состояния у него нет: сходимость каналов при любом порядке,
// дублировании и конкуренции обеспечивается идемпотентностью транзакции.
type Dispatcher struct {
	orders   domain.OrderRepository
	store    domain.ReconciliationStore
	provider domain.PaymentProvider
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	payments domain.PaymentRepository
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithLogger задаёт logger диспетчера.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics задаёт метрики; nil отключает их (для тестов).
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithPayments задаёт репозиторий платежей. Синхронная верификация
// по уже записанному платежу отвечает без обращения к провайдеру.
func WithPayments(payments domain.PaymentRepository) Option {
	return func(d *Dispatcher) {
		d.payments = payments
	}
}

// NewDispatcher создаёт диспетчер подтверждений оплаты.
func NewDispatcher(
	orders domain.OrderRepository,
	store domain.ReconciliationStore,
	provider domain.PaymentProvider,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	options ...Option,
) *Dispatcher {
	d := &Dispatcher{
		orders:   orders,
		store:    store,
		provider: provider,
		outbox:   outbox,
		timeline: timeline,
		logger:   log.WithField("component", "reconcile"),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// HandleNotification обрабатывает асинхронное уведомление провайдера.
// Неуспешный статус ничего не меняет: заказ остаётся pending в ожидании
// будущего успеха, уведомление по неизвестному reference логируется и
// игнорируется. Успешный статус применяется транзакцией сверки.
func (d *Dispatcher) HandleNotification(n Notification) error {
	reference := strings.TrimSpace(n.Reference)
	if reference == "" {
		return domain.ErrReferenceRequired
	}

	if n.Status != "success" {
		_, err := d.orders.GetByReference(reference)
		if err != nil {
			d.logger.WithFields(log.Fields{
				"reference": reference,
				"status":    n.Status,
			}).Info("non-success notification for unknown reference ignored")
			return nil
		}
		d.logger.WithFields(log.Fields{
			"reference": reference,
			"status":    n.Status,
		}).Info("non-success notification leaves order pending")
		return nil
	}

	_, err := d.apply(reference, n.Status, n.AmountMinor, n.RawPayload)
	return err
}

// VerifyReference — синхронный канал: активно спрашивает провайдера о статусе
// транзакции и при успехе применяет её. Возвращаемый PaymentResult — огрублённый
// итог только для редиректа покупателя на страницу результата.
func (d *Dispatcher) VerifyReference(ctx context.Context, reference string) (domain.PaymentResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.PaymentResultUnknown, domain.ErrReferenceRequired
	}

	// Записанный платёж означает уже применённый paid: провайдера
	// можно не спрашивать.
	if d.payments != nil {
		if _, found, err := d.payments.GetByReference(reference, domain.ProviderPaystack); err == nil && found {
			return domain.PaymentResultPaid, nil
		}
	}

	verification, err := d.provider.Verify(ctx, reference)
	if err != nil {
		d.logger.WithError(err).WithField("reference", reference).Error("provider verify failed")
		return domain.PaymentResultUnknown, err
	}

	if !verification.Succeeded() {
		d.logger.WithFields(log.Fields{
			"reference": reference,
			"status":    verification.Status,
		}).Info("verification reports non-success, order left untouched")
		return coarseResult(verification.Status), nil
	}

	outcome, err := d.apply(reference, verification.Status, verification.AmountMinor, verification.RawPayload)
	if err != nil {
		if domain.IsInventoryUnavailable(err) {
			return domain.PaymentResultFailed, nil
		}
		return domain.PaymentResultUnknown, err
	}
	if outcome.AlreadyFailed {
		return domain.PaymentResultFailed, nil
	}
	return domain.PaymentResultPaid, nil
}

// apply проводит подтверждённый платёж через транзакцию сверки и доигрывает
// последствия: события при первом применении, переход pending→failed при
// нехватке склада. Повторные применения того же reference безвредны.
func (d *Dispatcher) apply(reference, status string, amountMinor int64, rawPayload []byte) (domain.ReconcileOutcome, error) {
	order, err := d.orders.GetByReference(reference)
	if err != nil {
		return domain.ReconcileOutcome{}, fmt.Errorf("lookup order by reference %q: %w", reference, err)
	}

	start := time.Now()
	outcome, err := d.store.MarkOrderPaid(domain.PaymentApplication{
		OrderID:     order.ID,
		AmountMinor: amountMinor,
		Status:      status,
		Reference:   reference,
		RawPayload:  rawPayload,
	})
	if d.metrics != nil {
		d.metrics.RecordReconcileDuration(time.Since(start))
	}
	if err != nil {
		if domain.IsInventoryUnavailable(err) {
			d.failOrder(order, reference)
			return domain.ReconcileOutcome{}, err
		}
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id":  order.ID,
			"reference": reference,
		}).Error("reconciliation failed")
		return domain.ReconcileOutcome{}, err
	}

	if outcome.AlreadyPaid {
		if d.metrics != nil {
			d.metrics.RecordDuplicateNotification()
		}
		d.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"reference": reference,
		}).Info("duplicate confirmation, already applied")
		return outcome, nil
	}
	if outcome.AlreadyFailed {
		if d.metrics != nil {
			d.metrics.RecordDuplicateNotification()
		}
		d.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"reference": reference,
		}).Info("confirmation replayed for failed order, no effects")
		return outcome, nil
	}

	if d.metrics != nil {
		d.metrics.RecordOrderPaid()
	}
	d.appendTimeline(order.ID, domain.TimelinePaymentRecorded, reference)
	d.appendTimeline(order.ID, domain.TimelineOrderPaid, "")
	d.emitEvent(order.ID, order.CustomerEmail, string(domain.OrderStatusPaid), "order.paid", map[string]interface{}{
		"reference":    reference,
		"amount_minor": amountMinor,
	})

	d.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"reference":    reference,
		"amount_minor": amountMinor,
	}).Info("payment reconciled, order paid")

	return outcome, nil
}

// failOrder переводит заказ pending→failed после нехватки склада: платёж
// у провайдера реально состоялся, заказ остаётся как retryable-запись.
// Переход выполняется вне транзакции сверки; проигрыш конкурирующему
// переходу здесь не ошибка.
func (d *Dispatcher) failOrder(order domain.Order, reference string) {
	err := d.orders.TransitionStatus(order.ID, domain.OrderStatusPending, domain.OrderStatusFailed)
	if err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id":  order.ID,
			"reference": reference,
		}).Warn("order not transitioned to failed")
		return
	}

	if d.metrics != nil {
		d.metrics.RecordOrderFailed()
	}
	d.appendTimeline(order.ID, domain.TimelineOrderFailed, "inventory unavailable")
	d.emitEvent(order.ID, order.CustomerEmail, string(domain.OrderStatusFailed), "order.failed", map[string]interface{}{
		"reference": reference,
		"reason":    "inventory unavailable",
	})

	d.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"reference": reference,
	}).Warn("payment captured but inventory unavailable, order failed")
}

// coarseResult огрубляет неуспешный статус провайдера до результата для
// редиректа. Успешные статусы сюда не попадают: они проходят через apply.
func coarseResult(status string) domain.PaymentResult {
	switch status {
	case "pending", "ongoing", "processing", "queued", "send_otp":
		return domain.PaymentResultPending
	case "failed", "abandoned", "reversed":
		return domain.PaymentResultFailed
	default:
		return domain.PaymentResultUnknown
	}
}

func (d *Dispatcher) appendTimeline(orderID, eventType, reason string) {
	if d.timeline == nil {
		return
	}
	err := d.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("timeline append failed")
		return
	}
	if d.metrics != nil {
		d.metrics.RecordTimelineEvent()
	}
}

func (d *Dispatcher) emitEvent(orderID, customerEmail, status, eventType string, payload map[string]interface{}) {
	if d.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = orderID
	payload["customer_email"] = customerEmail
	payload["status"] = status

	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := d.outbox.Enqueue(msg); err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if d.metrics != nil {
		d.metrics.RecordOutboxEvent()
	}
}
