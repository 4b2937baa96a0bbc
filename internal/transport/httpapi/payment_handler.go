package httpapi

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
)

type webhookEventDTO struct {
	Event string `json:"event"`
	Data  struct {
		Reference   string `json:"reference"`
		Status      string `json:"status"`
		AmountMinor int64  `json:"amount"`
	} `json:"data"`
}

// handleWebhook — асинхронный канал подтверждения. Подпись считается по
// сырым байтам тела и сверяется до какого-либо разбора JSON; невалидная
// или отсутствующая подпись отклоняет запрос целиком. Уведомление по
// неизвестному reference подтверждается провайдеру как принятое.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	signature := r.Header.Get(headerPaystackSignature)
	if !a.validSignature(body, signature) {
		if a.metrics != nil {
			a.metrics.RecordWebhookRejected()
		}
		a.logger.Warn("webhook rejected: invalid signature")
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}

	var event webhookEventDTO
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	a.logger.WithFields(log.Fields{
		"event":     event.Event,
		"reference": event.Data.Reference,
		"status":    event.Data.Status,
	}).Info("paystack webhook received")

	err = a.dispatcher.HandleNotification(reconcile.Notification{
		Reference:   event.Data.Reference,
		Status:      event.Data.Status,
		AmountMinor: event.Data.AmountMinor,
		RawPayload:  body,
	})
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, domain.ErrOrderNotFound):
		// Платёж без локального заказа: подтверждаем приём, чтобы провайдер
		// не ретраил, и оставляем след в логах.
		a.logger.WithField("reference", event.Data.Reference).Warn("no order found for webhook reference")
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
	case domain.IsInventoryUnavailable(err):
		// Заказ переведён в failed; для провайдера уведомление обработано.
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, domain.ErrReferenceRequired):
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
	default:
		a.logger.WithError(err).WithField("reference", event.Data.Reference).Error("webhook processing failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// handleVerify — синхронный канал: после возврата покупателя активно
// спрашивает провайдера о статусе и редиректит на страницу результата
// с reference и огрублённым статусом.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		reference = strings.TrimSpace(r.URL.Query().Get("trxref"))
	}
	if reference == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}

	result, err := a.dispatcher.VerifyReference(r.Context(), reference)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		respondDomainError(w, err)
		return
	}

	target := a.resultURL +
		"?reference=" + url.QueryEscape(reference) +
		"&status=" + url.QueryEscape(string(result))
	http.Redirect(w, r, target, http.StatusFound)
}

// validSignature сверяет HMAC-SHA512 от сырого тела с заголовком подписи.
func (a *API) validSignature(body []byte, signature string) bool {
	if a.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(a.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
