package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// Input — запрошенная клиентом корзина вместе с его идентичностью.
type Input struct {
	CustomerEmail string
	CustomerName  string
	Items         []domain.CheckoutItem
}

// RetryInput — запрос повтора оплаты по reference неуспешного заказа.
type RetryInput struct {
	CustomerEmail string
	Reference     string
}

// Result — итог приёма корзины. При непустом Mismatches заказ не создаётся,
// остальные поля пустые: клиент должен пересмотреть корзину.
type Result struct {
	OrderID          string
	Reference        string
	AuthorizationURL string
	AmountMinor      int64
	Mismatches       []domain.CartMismatch
}

// Service принимает корзину, создаёт pending-заказ и инициализирует
// платёжную транзакцию у провайдера. Retry неуспешного заказа проходит
// тот же путь с повторной валидацией по текущему каталогу.
type Service struct {
	orders    domain.OrderRepository
	validator *Validator
	provider  domain.PaymentProvider
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics

	// callbackURL передаётся провайдеру как адрес возврата покупателя.
	callbackURL string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики; nil отключает их (для тестов).
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCallbackURL задаёт адрес возврата покупателя после оплаты.
func WithCallbackURL(url string) Option {
	return func(s *Service) {
		s.callbackURL = url
	}
}

// NewService создаёт сервис checkout.
func NewService(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	provider domain.PaymentProvider,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	options ...Option,
) *Service {
	s := &Service{
		orders:    orders,
		validator: NewValidator(products),
		provider:  provider,
		outbox:    outbox,
		timeline:  timeline,
		logger:    log.WithField("component", "checkout"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Checkout валидирует корзину, создаёт pending-заказ и инициализирует
// транзакцию у провайдера. При расхождениях корзины возвращает их без
// каких-либо побочных эффектов. Ошибка провайдера оставляет заказ
// pending без reference: уведомление по нему уже не придёт, но запись
// сохраняется как есть.
func (s *Service) Checkout(ctx context.Context, input Input) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	draft, err := s.validator.BuildDraft(input.Items)
	if err != nil {
		return Result{}, err
	}
	if len(draft.Mismatches) > 0 {
		s.recordMismatches(input.CustomerEmail, draft.Mismatches)
		return Result{Mismatches: draft.Mismatches}, nil
	}

	return s.createAndInitialize(ctx, input.CustomerEmail, input.CustomerName, draft)
}

// Retry повторяет оплату по reference неуспешного заказа: корзина заново
// валидируется по текущему каталогу с исходными ценами как ожидаемыми,
// при чистом черновике создаётся новый заказ и новая транзакция.
// Исходный failed-заказ остаётся нетронутым как исторический факт.
func (s *Service) Retry(ctx context.Context, input RetryInput) (Result, error) {
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return Result{}, domain.ErrCustomerRequired
	}
	if strings.TrimSpace(input.Reference) == "" {
		return Result{}, domain.ErrReferenceRequired
	}

	original, err := s.orders.GetByReference(input.Reference)
	if err != nil {
		return Result{}, err
	}
	if original.CustomerEmail != input.CustomerEmail {
		return Result{}, domain.ErrForbidden
	}
	if original.Status != domain.OrderStatusFailed {
		return Result{}, domain.ErrRetryNotAllowed
	}

	items := make([]domain.CheckoutItem, 0, len(original.Items))
	for _, line := range original.Items {
		expected := line.PriceMinor
		items = append(items, domain.CheckoutItem{
			ProductID:          line.ProductID,
			Quantity:           line.Qty,
			ExpectedPriceMinor: &expected,
		})
	}

	draft, err := s.validator.BuildDraft(items)
	if err != nil {
		return Result{}, err
	}
	if len(draft.Mismatches) > 0 {
		s.recordMismatches(input.CustomerEmail, draft.Mismatches)
		return Result{Mismatches: draft.Mismatches}, nil
	}

	result, err := s.createAndInitialize(ctx, original.CustomerEmail, original.CustomerName, draft)
	if err != nil {
		return result, err
	}

	if s.metrics != nil {
		s.metrics.RecordRetry()
	}
	s.appendTimeline(original.ID, domain.TimelineOrderRetried, result.OrderID)
	s.emitEvent(original.ID, original.CustomerEmail, string(original.Status), "order.retried", map[string]interface{}{
		"new_order_id": result.OrderID,
	})

	s.logger.WithFields(log.Fields{
		"order_id":     original.ID,
		"new_order_id": result.OrderID,
		"reference":    input.Reference,
	}).Info("failed order retried")

	return result, nil
}

func (s *Service) createAndInitialize(ctx context.Context, email, name string, draft domain.OrderDraft) (Result, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		CustomerEmail: email,
		CustomerName:  name,
		Status:        domain.OrderStatusPending,
		AmountMinor:   draft.AmountMinor,
		Items:         make([]domain.OrderLineItem, 0, len(draft.Items)),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, line := range draft.Items {
		line.ID = uuid.NewString()
		line.CreatedAt = now
		order.Items = append(order.Items, line)
	}

	if err := s.orders.Create(order); err != nil {
		return Result{}, fmt.Errorf("create order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.appendTimeline(order.ID, domain.TimelineOrderCreated, "")
	s.emitEvent(order.ID, order.CustomerEmail, string(order.Status), "order.created", map[string]interface{}{
		"amount_minor": order.AmountMinor,
	})

	tx, err := s.provider.Initialize(ctx, email, order.AmountMinor, s.callbackURL)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("provider initialize failed")
		return Result{OrderID: order.ID, AmountMinor: order.AmountMinor}, err
	}

	if err := s.orders.AttachReference(order.ID, tx.Reference); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":  order.ID,
			"reference": tx.Reference,
		}).Error("attach reference failed")
		return Result{OrderID: order.ID, AmountMinor: order.AmountMinor}, err
	}
	s.appendTimeline(order.ID, domain.TimelineReferenceAttached, tx.Reference)

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"reference":    tx.Reference,
		"amount_minor": order.AmountMinor,
	}).Info("order created and provider transaction initialized")

	return Result{
		OrderID:          order.ID,
		Reference:        tx.Reference,
		AuthorizationURL: tx.AuthorizationURL,
		AmountMinor:      order.AmountMinor,
	}, nil
}

func (s *Service) recordMismatches(email string, mismatches []domain.CartMismatch) {
	for _, mismatch := range mismatches {
		if s.metrics != nil {
			s.metrics.RecordCartMismatch(string(mismatch.Kind))
		}
	}
	s.logger.WithFields(log.Fields{
		"customer_email": email,
		"mismatches":     len(mismatches),
	}).Info("cart rejected with mismatches")
}

func (s *Service) appendTimeline(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	err := s.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("timeline append failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) emitEvent(orderID, customerEmail, status, eventType string, payload map[string]interface{}) {
	if s.outbox == nil {
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
		s.logger.WithError(err).WithFields(log.Fields{
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
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func validateInput(input Input) error {
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return domain.ErrCustomerRequired
	}
	if len(input.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range input.Items {
		if item.ProductID <= 0 {
			return domain.ErrProductIDInvalid
		}
		if item.Quantity <= 0 {
			return domain.ErrItemQtyInvalid
		}
	}
	return nil
}
