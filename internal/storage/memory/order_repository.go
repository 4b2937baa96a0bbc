package memory

import (
	"sort"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orderRepositoryInMemory — реализация OrderRepository поверх общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	// Сохраняем копию позиций, чтобы избежать непредсказуемых мутаций извне.
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	r.store.orders[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	return order, nil
}

// GetByReference ищет заказ по внешнему reference платёжного провайдера.
func (r *orderRepositoryInMemory) GetByReference(reference string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	orderID, ok := r.store.refIndex[reference]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order := r.store.orders[orderID]
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	return order, nil
}

// AttachReference привязывает reference к заказу. Reference выставляется один
// раз и глобально уникален: повторная привязка того же значения к тому же
// заказу идемпотентна, любое другое сочетание — ErrReferenceConflict.
func (r *orderRepositoryInMemory) AttachReference(orderID, reference string) error {
	if reference == "" {
		return domain.ErrReferenceConflict
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}

	if owner, taken := r.store.refIndex[reference]; taken {
		if owner == orderID {
			return nil
		}
		return domain.ErrReferenceConflict
	}
	if order.ProviderReference != "" && order.ProviderReference != reference {
		return domain.ErrReferenceConflict
	}

	order.ProviderReference = reference
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.store.orders[orderID] = order
	r.store.refIndex[reference] = orderID
	return nil
}

// TransitionStatus переводит заказ from -> to, проверяя машину состояний.
func (r *orderRepositoryInMemory) TransitionStatus(orderID string, from, to domain.OrderStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.transitionStatusLocked(orderID, from, to)
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(customerEmail string, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		if order.CustomerEmail != customerEmail {
			continue
		}
		order.Items = append([]domain.OrderLineItem(nil), order.Items...)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
