package checkout

import (
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Validator сверяет запрошенную корзину с текущим состоянием каталога
// и строит черновик заказа. Чтение каталога выполняется ровно один раз,
// побочных эффектов нет: checkout и retry используют его одинаково.
type Validator struct {
	products domain.ProductRepository
}

// NewValidator создаёт валидатор корзины.
func NewValidator(products domain.ProductRepository) *Validator {
	return &Validator{products: products}
}

// BuildDraft строит черновик по запрошенным позициям. Расхождения собираются
// в порядке входа; позиция с расхождением в черновик не попадает. Цены и
// количества никогда молча не подгоняются: непустой Mismatches означает,
// что клиент должен пересмотреть корзину и отправить её заново.
func (v *Validator) BuildDraft(items []domain.CheckoutItem) (domain.OrderDraft, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	snapshot, err := v.products.Snapshot(ids)
	if err != nil {
		return domain.OrderDraft{}, fmt.Errorf("catalog snapshot: %w", err)
	}

	var draft domain.OrderDraft
	for _, item := range items {
		product, ok := snapshot[item.ProductID]
		if !ok {
			draft.Mismatches = append(draft.Mismatches, domain.NewProductNotFoundMismatch(item.ProductID))
			continue
		}
		if item.Quantity > product.Inventory {
			draft.Mismatches = append(draft.Mismatches, domain.NewOutOfStockMismatch(product, item.Quantity))
			continue
		}
		if item.ExpectedPriceMinor != nil && *item.ExpectedPriceMinor != product.PriceMinor {
			draft.Mismatches = append(draft.Mismatches, domain.NewPriceChangedMismatch(product, *item.ExpectedPriceMinor))
			continue
		}

		draft.Items = append(draft.Items, domain.OrderLineItem{
			ProductID:     product.ID,
			Qty:           item.Quantity,
			PriceMinor:    product.PriceMinor,
			TitleSnapshot: product.Title,
			SKUSnapshot:   product.SKU,
		})
		draft.AmountMinor += int64(item.Quantity) * product.PriceMinor
	}

	return draft, nil
}
