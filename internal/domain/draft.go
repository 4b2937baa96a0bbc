package domain

import "fmt"

// CheckoutItem — позиция корзины, запрошенная клиентом.
// ExpectedPriceMinor заполняется, когда клиент хочет зафиксировать цену,
// которую он видел; nil означает "любая текущая цена".
type CheckoutItem struct {
	ProductID          int64
	Quantity           int32
	ExpectedPriceMinor *int64
}

// MismatchKind — тип расхождения корзины с текущим состоянием каталога.
type MismatchKind string

const (
	MismatchProductNotFound MismatchKind = "product_not_found"
	MismatchOutOfStock      MismatchKind = "out_of_stock"
	MismatchPriceChanged    MismatchKind = "price_changed"
)

// CartMismatch описывает одну причину, по которой запрошенная позиция
// не может быть принята как есть. Деталей достаточно и для точного
// пользовательского сообщения, и для автоматических проверок.
type CartMismatch struct {
	Kind      MismatchKind `json:"kind"`
	ProductID int64        `json:"product_id"`
	Title     string       `json:"title,omitempty"`
	// Для out_of_stock.
	RequestedQty int32 `json:"requested_qty,omitempty"`
	AvailableQty int32 `json:"available_qty,omitempty"`
	// Для price_changed.
	ExpectedPriceMinor int64  `json:"expected_price_minor,omitempty"`
	ActualPriceMinor   int64  `json:"actual_price_minor,omitempty"`
	Message            string `json:"message"`
}

// OrderDraft — провалидированный, оценённый набор позиций, ещё не сохранённый.
// Контракт: при непустом Mismatches черновик непригоден для создания заказа —
// цены и количества никогда молча не подгоняются.
type OrderDraft struct {
	AmountMinor int64
	Items       []OrderLineItem
	Mismatches  []CartMismatch
}

// Usable сообщает, можно ли по черновику создавать заказ.
func (d *OrderDraft) Usable() bool {
	return len(d.Mismatches) == 0 && len(d.Items) > 0
}

// formatMinor форматирует сумму в минимальных единицах для пользовательских сообщений.
func formatMinor(minor int64) string {
	return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
}

// NewProductNotFoundMismatch создаёт расхождение для исчезнувшего товара.
func NewProductNotFoundMismatch(productID int64) CartMismatch {
	return CartMismatch{
		Kind:      MismatchProductNotFound,
		ProductID: productID,
		Message:   fmt.Sprintf("Product #%d is no longer available.", productID),
	}
}

// NewOutOfStockMismatch создаёт расхождение по нехватке остатка.
func NewOutOfStockMismatch(p Product, requested int32) CartMismatch {
	return CartMismatch{
		Kind:         MismatchOutOfStock,
		ProductID:    p.ID,
		Title:        p.Title,
		RequestedQty: requested,
		AvailableQty: p.Inventory,
		Message:      fmt.Sprintf("%s only has %d left (requested %d).", p.Title, p.Inventory, requested),
	}
}

// NewPriceChangedMismatch создаёт расхождение по изменившейся цене.
func NewPriceChangedMismatch(p Product, expected int64) CartMismatch {
	return CartMismatch{
		Kind:               MismatchPriceChanged,
		ProductID:          p.ID,
		Title:              p.Title,
		ExpectedPriceMinor: expected,
		ActualPriceMinor:   p.PriceMinor,
		Message: fmt.Sprintf("%s price changed from %s to %s.",
			p.Title, formatMinor(expected), formatMinor(p.PriceMinor)),
	}
}
