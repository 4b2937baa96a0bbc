package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// errorResponse — единый формат ошибки API.
type errorResponse struct {
	Error      string                `json:"error"`
	Code       string                `json:"code,omitempty"`
	Mismatches []domain.CartMismatch `json:"mismatches,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// mapDomainError отображает доменные ошибки на таксономию HTTP-статусов:
// валидация — 400, чужой заказ — 403, неизвестный заказ — 404, конфликт
// состояния — 409, недоступный провайдер — 502.
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrProductIDInvalid),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrReferenceRequired):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrRetryNotAllowed):
		return http.StatusConflict, "retry_not_allowed"
	case errors.Is(err, domain.ErrReferenceConflict):
		return http.StatusConflict, "reference_conflict"
	case errors.Is(err, domain.ErrInventoryUnavailable):
		return http.StatusConflict, "inventory_unavailable"
	case domain.IsIdempotencyConflict(err):
		return http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondDomainError(w http.ResponseWriter, err error) {
	status, code := mapDomainError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondError(w, status, code, message)
}
