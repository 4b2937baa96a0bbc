package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Store — in-memory состояние каталога, заказов и платежей для локальной
// разработки и тестов. Один мьютекс на все таблицы заменяет транзакцию БД:
// сверка платежа выполняется под эксклюзивной блокировкой и потому атомарна
// для любых конкурентных читателей.
type Store struct {
	mu sync.RWMutex

	products map[int64]domain.Product
	orders   map[string]domain.Order
	// refIndex поддерживает глобальную уникальность внешнего reference.
	refIndex map[string]string
	// payments индексируются ключом идемпотентности (reference, provider).
	payments map[string]domain.Payment

	nextProductID int64
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		orders:        make(map[string]domain.Order),
		refIndex:      make(map[string]string),
		payments:      make(map[string]domain.Payment),
		nextProductID: 1,
	}
}

// paymentKey — составной ключ идемпотентности платежа.
func paymentKey(reference, provider string) string {
	return reference + "|" + provider
}

// ReplaceProduct перезаписывает товар целиком: репрайс и корректировка
// остатка для локальной разработки и тестов. Несуществующий товар — ошибка.
func (s *Store) ReplaceProduct(p domain.Product) (domain.Product, error) {
	if errs := p.Validate(); len(errs) != 0 {
		return domain.Product{}, errs[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

// transitionStatusLocked переводит заказ from -> to. Вызывать строго под
// эксклюзивной блокировкой mu.
func (s *Store) transitionStatusLocked(orderID string, from, to domain.OrderStatus) error {
	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrOrderVersionConflict
	}
	if !from.CanTransition(to) {
		return domain.ErrInvalidTransition
	}

	order.Status = to
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order
	return nil
}
