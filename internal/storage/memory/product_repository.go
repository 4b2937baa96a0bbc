package memory

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// productRepositoryInMemory — реализация ProductRepository поверх общего Store.
type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory репозиторий каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

// Snapshot возвращает текущее состояние запрошенных товаров одним чтением.
// Отсутствующие идентификаторы просто не попадают в результат.
func (r *productRepositoryInMemory) Snapshot(ids []int64) (map[int64]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id int64) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// Create сохраняет товар, присваивая идентификатор, если он не задан.
func (r *productRepositoryInMemory) Create(p domain.Product) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if p.ID <= 0 {
		p.ID = r.store.nextProductID
	}
	if errs := p.Validate(); len(errs) != 0 {
		return domain.Product{}, errs[0]
	}
	if p.ID >= r.store.nextProductID {
		r.store.nextProductID = p.ID + 1
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	r.store.products[p.ID] = p
	return p, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
