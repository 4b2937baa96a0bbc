package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type orderLineItemDTO struct {
	ProductID  int64  `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
	Title      string `json:"title"`
	SKU        string `json:"sku"`
}

type orderDTO struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	AmountMinor int64              `json:"amount_minor"`
	Reference   string             `json:"reference,omitempty"`
	Items       []orderLineItemDTO `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// handleListOrders возвращает заказы клиента, новые первыми.
func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	email, ok := a.requireCustomer(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := a.orders.ListByCustomer(email, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result := make([]orderDTO, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderDTO(order))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": result})
}

// handleTimeline возвращает события жизненного цикла заказа. Чужой заказ — 403.
func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	email, ok := a.requireCustomer(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := a.orders.Get(orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if order.CustomerEmail != email {
		respondDomainError(w, domain.ErrForbidden)
		return
	}

	events, err := a.timeline.List(orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"events":   result,
	})
}

func toOrderDTO(order domain.Order) orderDTO {
	dto := orderDTO{
		ID:          order.ID,
		Status:      string(order.Status),
		AmountMinor: order.AmountMinor,
		Reference:   order.ProviderReference,
		Items:       make([]orderLineItemDTO, 0, len(order.Items)),
		CreatedAt:   order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, orderLineItemDTO{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Title:      item.TitleSnapshot,
			SKU:        item.SKUSnapshot,
		})
	}
	return dto
}
