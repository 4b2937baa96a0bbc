package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const idempotencyTTL = 24 * time.Hour

type checkoutItemDTO struct {
	ProductID          int64  `json:"product_id"`
	Quantity           int32  `json:"quantity"`
	ExpectedPriceMinor *int64 `json:"expected_price_minor,omitempty"`
}

type checkoutRequestDTO struct {
	Items []checkoutItemDTO `json:"items"`
}

type retryRequestDTO struct {
	Reference string `json:"reference"`
}

type checkoutResponseDTO struct {
	OrderID          string `json:"order_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AmountMinor      int64  `json:"amount_minor"`
}

// handleCheckout принимает корзину. Расхождения с каталогом — 409 со
// структурированным списком, ошибка провайдера — 502. Повторная отправка
// с тем же Idempotency-Key возвращает сохранённый ответ, не создавая
// второй заказ.
func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	email, ok := a.requireCustomer(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	var req checkoutRequestDTO
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Форма запроса проверяется до валидации корзины.
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "items are required")
		return
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "product_id must be positive")
			return
		}
		if item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "quantity must be positive")
			return
		}
	}

	input := checkout.Input{
		CustomerEmail: email,
		CustomerName:  strings.TrimSpace(r.Header.Get(headerCustomerName)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, domain.CheckoutItem{
			ProductID:          item.ProductID,
			Quantity:           item.Quantity,
			ExpectedPriceMinor: item.ExpectedPriceMinor,
		})
	}

	a.withIdempotency(w, r, email, body, func() (int, interface{}) {
		result, err := a.checkout.Checkout(r.Context(), input)
		if err != nil {
			status, code := mapDomainError(err)
			return status, errorResponse{Error: err.Error(), Code: code}
		}
		if len(result.Mismatches) > 0 {
			return http.StatusConflict, errorResponse{
				Error:      "cart does not match current catalog state",
				Code:       "cart_mismatch",
				Mismatches: result.Mismatches,
			}
		}
		return http.StatusCreated, checkoutResponseDTO{
			OrderID:          result.OrderID,
			Reference:        result.Reference,
			AuthorizationURL: result.AuthorizationURL,
			AmountMinor:      result.AmountMinor,
		}
	})
}

// handleRetry повторяет оплату failed-заказа. Ответ по форме совпадает
// с handleCheckout.
func (a *API) handleRetry(w http.ResponseWriter, r *http.Request) {
	email, ok := a.requireCustomer(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	var req retryRequestDTO
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}

	result, err := a.checkout.Retry(r.Context(), checkout.RetryInput{
		CustomerEmail: email,
		Reference:     req.Reference,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if len(result.Mismatches) > 0 {
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:      "cart does not match current catalog state",
			Code:       "cart_mismatch",
			Mismatches: result.Mismatches,
		})
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponseDTO{
		OrderID:          result.OrderID,
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		AmountMinor:      result.AmountMinor,
	})
}

func (a *API) requireCustomer(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := strings.TrimSpace(r.Header.Get(headerCustomerEmail))
	if email == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "customer identity is required")
		return "", false
	}
	return email, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// withIdempotency выполняет handler под ключом идемпотентности из заголовка.
// Повторный запрос с тем же ключом и телом получает сохранённый ответ; тот же
// ключ с другим телом — конфликт. Без заголовка или репозитория handler
// выполняется как есть.
func (a *API) withIdempotency(w http.ResponseWriter, r *http.Request, email string, body []byte, handler func() (int, interface{})) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || a.idem == nil {
		status, payload := handler()
		respondJSON(w, status, payload)
		return
	}

	hash := requestHash(email, body)
	record, err := a.idem.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		a.replayIdempotency(w, key, record, err)
		return
	}

	status, payload := handler()
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		a.logger.WithError(marshalErr).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
	}

	if status >= 200 && status < 300 {
		if markErr := a.idem.MarkDone(key, data, status); markErr != nil {
			a.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
		}
	} else {
		if markErr := a.idem.MarkFailed(key, data, status); markErr != nil {
			a.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent failure response")
		}
	}

	respondJSON(w, status, payload)
}

func (a *API) replayIdempotency(w http.ResponseWriter, key string, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondError(w, http.StatusConflict, "idempotency_conflict", "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			a.writeStoredResponse(w, record)
		case domain.IdempotencyStatusProcessing:
			respondError(w, http.StatusConflict, "idempotency_in_flight", "request with the same idempotency key is already processing")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "unknown idempotency record status")
		}
	default:
		a.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		respondError(w, http.StatusInternalServerError, "internal", "failed to initialize idempotent request")
	}
}

func (a *API) writeStoredResponse(w http.ResponseWriter, record domain.IdempotencyRecord) {
	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		if _, err := w.Write(record.ResponseBody); err != nil {
			a.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to replay idempotent response")
		}
	}
}

// requestHash связывает ключ идемпотентности с клиентом и точным телом запроса.
func requestHash(email string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(email))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
