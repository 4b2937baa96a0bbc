package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer email is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка некорректного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка некорректного идентификатора товара.
	ErrProductIDInvalid = errors.New("product id must be greater than zero")
	// Ошибка отсутствующего названия товара.
	ErrProductTitleRequired = errors.New("product title is required")
	// Ошибка отсутствующего SKU товара.
	ErrProductSKURequired = errors.New("product sku is required")
	// Ошибка отрицательного остатка на складе.
	ErrInventoryNegative = errors.New("product inventory must be non-negative")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка отсутствующего кода платёжного провайдера.
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	// Ошибка отсутствующего внешнего reference платежа.
	ErrReferenceRequired = errors.New("payment reference is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrReferenceConflict — попытка переназначить или продублировать внешний reference.
	ErrReferenceConflict = errors.New("provider reference already assigned")
	// ErrInvalidTransition — недопустимый переход статуса заказа
	// (в т.ч. конкурирующий переход, успевший раньше).
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrInventoryUnavailable — склад не может покрыть заказ; поднимается только
	// изнутри транзакции сверки и всегда сопровождается переходом pending→failed
	// на стороне вызывающего.
	ErrInventoryUnavailable = errors.New("inventory unavailable")

	// ErrProviderUnavailable — ошибка обращения к платёжному провайдеру;
	// не ретраится автоматически, поднимается вызывающему как есть.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrRetryNotAllowed — retry запрошен для заказа не в статусе failed.
	ErrRetryNotAllowed = errors.New("only failed orders can be retried")
	// ErrForbidden — заказ принадлежит другому клиенту.
	ErrForbidden = errors.New("order belongs to another customer")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки идемпотентного приёма checkout-запросов.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsInventoryUnavailable проверяет, является ли ошибка нехваткой склада.
func IsInventoryUnavailable(err error) bool {
	return errors.Is(err, ErrInventoryUnavailable)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, является ли ошибка конфликтом idempotency-key.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
