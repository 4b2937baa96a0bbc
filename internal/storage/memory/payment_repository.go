package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// paymentRepositoryInMemory — реализация PaymentRepository поверх общего Store.
type paymentRepositoryInMemory struct {
	store *Store
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepositoryInMemory{store: store}
}

// ListByOrder возвращает платежи заказа в порядке создания.
func (r *paymentRepositoryInMemory) ListByOrder(orderID string) ([]domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Payment, 0, 1)
	for _, p := range r.store.payments {
		if p.OrderID == orderID {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetByReference ищет платёж по ключу идемпотентности (reference, provider).
func (r *paymentRepositoryInMemory) GetByReference(reference, provider string) (domain.Payment, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.payments[paymentKey(reference, provider)]
	return p, ok, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
