package app

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// newTestOrder создаёт тестовый заказ для использования в тестах.
func newTestOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "test-order-1",
		CustomerEmail: "customer@example.com",
		CustomerName:  "Test Customer",
		Status:        domain.OrderStatusPending,
		AmountMinor:   1000,
		Items: []domain.OrderLineItem{
			{
				ID:            "item-1",
				ProductID:     1,
				Qty:           1,
				PriceMinor:    1000,
				TitleSnapshot: "Test Product",
				SKUSnapshot:   "SKU-TEST",
				CreatedAt:     now,
			},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
