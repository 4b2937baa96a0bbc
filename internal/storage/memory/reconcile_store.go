package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// reconcileStoreInMemory применяет подтверждённый платёж к заказу под одной
// эксклюзивной блокировкой Store: аудиторская запись, условное списание склада
// и перевод статуса видны конкурентным читателям только целиком.
type reconcileStoreInMemory struct {
	store *Store
}

// NewReconciliationStore возвращает in-memory реализацию транзакции сверки.
func NewReconciliationStore(store *Store) domain.ReconciliationStore {
	return &reconcileStoreInMemory{store: store}
}

// MarkOrderPaid — см. domain.ReconciliationStore.
func (s *reconcileStoreInMemory) MarkOrderPaid(input domain.PaymentApplication) (domain.ReconcileOutcome, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	order, ok := s.store.orders[input.OrderID]
	if !ok {
		return domain.ReconcileOutcome{}, domain.ErrOrderNotFound
	}

	key := paymentKey(input.Reference, domain.ProviderPaystack)
	if _, seen := s.store.payments[key]; seen {
		// Дубль уведомления: эффекты уже применены ранее.
		return domain.ReconcileOutcome{Applied: true, AlreadyPaid: true}, nil
	}
	if order.Status == domain.OrderStatusPaid {
		return domain.ReconcileOutcome{Applied: true, AlreadyPaid: true}, nil
	}
	// Повтор подтверждения по заказу, уже переведённому в failed:
	// ни заказ, ни склад не трогаются.
	if order.Status == domain.OrderStatusFailed {
		return domain.ReconcileOutcome{AlreadyFailed: true}, nil
	}
	if order.Status != domain.OrderStatusPending {
		return domain.ReconcileOutcome{}, domain.ErrInvalidTransition
	}

	// Проверяем покрытие склада по всем позициям до каких-либо изменений,
	// чтобы не откатывать частичные списания.
	for _, item := range order.Items {
		product, found := s.store.products[item.ProductID]
		if !found || product.Inventory < item.Qty {
			return domain.ReconcileOutcome{}, domain.ErrInventoryUnavailable
		}
	}

	now := time.Now().UTC()
	for _, item := range order.Items {
		product := s.store.products[item.ProductID]
		product.Inventory -= item.Qty
		product.UpdatedAt = now
		s.store.products[item.ProductID] = product
	}

	s.store.payments[key] = domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Provider:    domain.ProviderPaystack,
		Reference:   input.Reference,
		Status:      input.Status,
		AmountMinor: input.AmountMinor,
		RawPayload:  append([]byte(nil), input.RawPayload...),
		CreatedAt:   now,
	}

	if err := s.store.transitionStatusLocked(order.ID, domain.OrderStatusPending, domain.OrderStatusPaid); err != nil {
		return domain.ReconcileOutcome{}, err
	}

	return domain.ReconcileOutcome{Applied: true}, nil
}

var _ domain.ReconciliationStore = (*reconcileStoreInMemory)(nil)
