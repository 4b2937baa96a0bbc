package domain

import "time"

// ProviderPaystack — код платёжного провайдера, под которым сохраняются платежи.
const ProviderPaystack = "paystack"

// PaymentResultPaid и соседние константы — огрублённый итог синхронной верификации,
// используется только для редиректа покупателя на страницу результата.
type PaymentResult string

const (
	PaymentResultPaid    PaymentResult = "paid"
	PaymentResultPending PaymentResult = "pending"
	PaymentResultFailed  PaymentResult = "failed"
	PaymentResultUnknown PaymentResult = "unknown"
)

// Payment — аудиторская запись одного уведомления провайдера об оплате.
// Инвариант: не более одной записи на пару (Reference, Provider) — это ключ
// идемпотентности, отсекающий дубли уведомлений.
type Payment struct {
	ID          string
	OrderID     string
	Provider    string
	Reference   string
	Status      string // Статус в терминах провайдера, сохраняется как есть.
	AmountMinor int64
	// RawPayload — исходное тело уведомления без изменений, для аудита и replay.
	RawPayload []byte
	CreatedAt  time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Provider == "" {
		errs = append(errs, ErrPaymentProviderRequired)
	}
	if p.Reference == "" {
		errs = append(errs, ErrReferenceRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}

	return errs
}

// PaymentApplication — вход транзакции сверки: подтверждённый провайдером платёж,
// который нужно атомарно применить к заказу.
type PaymentApplication struct {
	OrderID     string
	AmountMinor int64
	Status      string
	Reference   string
	RawPayload  []byte
}

// ReconcileOutcome — результат транзакции сверки.
type ReconcileOutcome struct {
	// Applied — эффекты платежа применены (сейчас или ранее).
	Applied bool
	// AlreadyPaid — заказ уже был paid, повторный вызов ничего не менял.
	AlreadyPaid bool
	// AlreadyFailed — заказ уже переведён в failed; повтор подтверждения
	// безвреден и не меняет ни заказ, ни склад.
	AlreadyFailed bool
}
