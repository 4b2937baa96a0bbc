package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями одной атомарной записью.
	// Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ с позициями по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByReference возвращает заказ по внешнему reference платёжной транзакции
	// или ErrOrderNotFound.
	GetByReference(reference string) (Order, error)
	// AttachReference присваивает заказу внешний reference. Reference ставится
	// ровно один раз и глобально уникален: повторная установка или дубль
	// возвращают ErrReferenceConflict.
	AttachReference(orderID, reference string) error
	// TransitionStatus переводит заказ из from в to, только если текущий статус
	// равен from. Конкурирующий переход, успевший раньше, даёт ErrInvalidTransition.
	TransitionStatus(orderID string, from, to OrderStatus) error
	// ListByCustomer возвращает заказы клиента, новые первыми,
	// с опциональным ограничением на количество.
	ListByCustomer(customerEmail string, limit int) ([]Order, error)
}
