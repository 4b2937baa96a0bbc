package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	// DefaultBaseURL — production-эндпоинт Paystack.
	DefaultBaseURL = "https://api.paystack.co"

	defaultHTTPTimeout = 10 * time.Second
)

// PaystackClient — клиент Paystack API поверх resty. Ретраев нет: ошибка
// провайдера поднимается вызывающему сразу, решение о повторе за ним.
type PaystackClient struct {
	http   *resty.Client
	logger *logrus.Logger
}

// NewPaystackClient создаёт клиент с bearer-авторизацией по секретному ключу.
// Пустой baseURL означает production-эндпоинт.
func NewPaystackClient(baseURL, secret string, logger *logrus.Logger) (*PaystackClient, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("paystack secret is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(secret).
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Content-Type", "application/json")

	return &PaystackClient{http: client, logger: logger}, nil
}

// initializeRequest — тело POST /transaction/initialize.
// Amount у Paystack в минорных единицах, как и у нас.
type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callback_url"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// Initialize создаёт транзакцию у провайдера и возвращает reference с URL
// платёжной страницы.
func (c *PaystackClient) Initialize(ctx context.Context, email string, amountMinor int64, callbackURL string) (domain.ProviderTransaction, error) {
	var out initializeResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(initializeRequest{Email: email, Amount: amountMinor, CallbackURL: callbackURL}).
		SetResult(&out).
		Post("/transaction/initialize")
	if err != nil {
		return domain.ProviderTransaction{}, fmt.Errorf("%w: initialize: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.IsError() || !out.Status {
		c.logger.WithFields(logrus.Fields{
			"http_status": resp.StatusCode(),
			"message":     out.Message,
		}).Warn("paystack initialize rejected")
		return domain.ProviderTransaction{}, fmt.Errorf("%w: initialize: http %d: %s", domain.ErrProviderUnavailable, resp.StatusCode(), out.Message)
	}
	if out.Data.Reference == "" || out.Data.AuthorizationURL == "" {
		return domain.ProviderTransaction{}, fmt.Errorf("%w: initialize: empty reference or authorization url", domain.ErrProviderUnavailable)
	}

	return domain.ProviderTransaction{
		Reference:        out.Data.Reference,
		AuthorizationURL: out.Data.AuthorizationURL,
	}, nil
}

// Verify запрашивает текущий статус транзакции по reference.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (domain.ProviderVerification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.ProviderVerification{}, fmt.Errorf("reference is required")
	}

	var out verifyResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("reference", reference).
		Get("/transaction/verify/{reference}")
	if err != nil {
		return domain.ProviderVerification{}, fmt.Errorf("%w: verify: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.IsError() || !out.Status {
		c.logger.WithFields(logrus.Fields{
			"http_status": resp.StatusCode(),
			"reference":   reference,
			"message":     out.Message,
		}).Warn("paystack verify rejected")
		return domain.ProviderVerification{}, fmt.Errorf("%w: verify: http %d: %s", domain.ErrProviderUnavailable, resp.StatusCode(), out.Message)
	}

	return domain.ProviderVerification{
		Reference:   out.Data.Reference,
		Status:      out.Data.Status,
		AmountMinor: out.Data.Amount,
		RawPayload:  append([]byte(nil), resp.Body()...),
	}, nil
}

var _ domain.PaymentProvider = (*PaystackClient)(nil)
