package domain

import (
	"context"
	"time"
)

// ProductRepository описывает доступ к каталогу товаров.
type ProductRepository interface {
	// Snapshot возвращает текущее состояние (цена/название/SKU/остаток)
	// для набора идентификаторов одним чтением. Отсутствующие товары
	// просто не попадают в результат; побочных эффектов нет.
	Snapshot(ids []int64) (map[int64]Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(id int64) (Product, error)
	// Create сохраняет товар (seed/локальная разработка).
	Create(p Product) (Product, error)
}

// PaymentRepository читает аудиторские записи платежей.
// Запись платежей выполняется только внутри ReconciliationStore.
type PaymentRepository interface {
	// ListByOrder возвращает платежи заказа в порядке создания.
	ListByOrder(orderID string) ([]Payment, error)
	// GetByReference возвращает платёж по ключу идемпотентности
	// (reference, provider) или ErrOrderNotFound-подобную "не найдено" семантику
	// через ok=false.
	GetByReference(reference, provider string) (Payment, bool, error)
}

// ReconciliationStore выполняет транзакцию сверки платежа: аудиторская запись,
// условное списание склада по каждой позиции и перевод заказа в paid — одной
// атомарной единицей. Любое частичное состояние недоступно конкурентным читателям.
type ReconciliationStore interface {
	// MarkOrderPaid применяет подтверждённый платёж к заказу.
	// Возвращает ErrOrderNotFound, если заказа нет (без побочных эффектов),
	// и ErrInventoryUnavailable, если склад не покрывает хотя бы одну позицию
	// (все изменения откатываются). Вызов идемпотентен: повторы с тем же
	// reference не создают новых записей и не списывают склад повторно.
	MarkOrderPaid(input PaymentApplication) (ReconcileOutcome, error)
}

// PaymentProvider описывает взаимодействие с платёжным провайдером.
// Вызовы блокирующие, без внутренних ретраев: ошибка поднимается сразу.
type PaymentProvider interface {
	// Initialize создаёт платёжную транзакцию и возвращает reference
	// вместе с URL для редиректа покупателя.
	Initialize(ctx context.Context, email string, amountMinor int64, callbackURL string) (ProviderTransaction, error)
	// Verify запрашивает у провайдера текущий статус транзакции.
	Verify(ctx context.Context, reference string) (ProviderVerification, error)
}

// ProviderTransaction — результат инициализации транзакции у провайдера.
type ProviderTransaction struct {
	Reference        string
	AuthorizationURL string
}

// ProviderVerification — ответ провайдера на запрос статуса.
type ProviderVerification struct {
	Reference   string
	Status      string
	AmountMinor int64
	// RawPayload — тело ответа провайдера как есть, для аудита.
	RawPayload []byte
}

// Succeeded сообщает, считает ли провайдер транзакцию успешной.
func (v ProviderVerification) Succeeded() bool {
	return v.Status == "success"
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки checkout-запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
