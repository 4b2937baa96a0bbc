package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, подтверждение оплаты ещё не пришло.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена и склад списан; терминальный статус.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — оплата прошла у провайдера, но склад не смог покрыть заказ;
	// терминальный статус, единственная легитимная точка старта retry.
	OrderStatusFailed OrderStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным: из paid и failed переходов нет.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed
}

// CanTransition проверяет допустимость перехода статусов.
// Разрешены только pending→paid и pending→failed.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == OrderStatusPending && to.Terminal()
}

// OrderLineItem представляет одну позицию заказа. Снимки цены, названия и SKU
// фиксируются в момент валидации корзины и больше никогда не перечитываются из
// каталога: исторические заказы остаются читаемыми после репрайса или удаления товара.
type OrderLineItem struct {
	ID            string
	ProductID     int64
	Qty           int32
	PriceMinor    int64
	TitleSnapshot string
	SKUSnapshot   string
	CreatedAt     time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	CustomerEmail string
	CustomerName  string
	Status        OrderStatus
	// AmountMinor — снимок суммы на момент создания заказа; никогда не пересчитывается.
	AmountMinor int64
	// ProviderReference — внешний идентификатор платёжной транзакции.
	// Пустой до инициализации транзакции у провайдера, затем неизменяемый
	// и глобально уникальный среди всех заказов.
	ProviderReference string
	Items             []OrderLineItem
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.ProductID <= 0 {
			errs = append(errs, ErrProductIDInvalid)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
