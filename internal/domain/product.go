package domain

import "time"

// Product описывает товар каталога с текущей ценой и остатком на складе.
// Остаток уменьшается только транзакцией сверки платежа; пополнение склада
// выполняется административно и находится вне этого сервиса.
type Product struct {
	ID         int64
	Title      string
	SKU        string
	PriceMinor int64 // Цена за единицу в минимальных денежных единицах.
	Inventory  int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет базовые инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.ID <= 0 {
		errs = append(errs, ErrProductIDInvalid)
	}
	if p.Title == "" {
		errs = append(errs, ErrProductTitleRequired)
	}
	if p.SKU == "" {
		errs = append(errs, ErrProductSKURequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.Inventory < 0 {
		errs = append(errs, ErrInventoryNegative)
	}

	return errs
}
