package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
)

const (
	// Идентичность клиента приходит из доверенных заголовков:
	// сессии и аутентификация живут выше по стеку.
	headerCustomerEmail = "X-Customer-Email"
	headerCustomerName  = "X-Customer-Name"

	headerIdempotencyKey    = "Idempotency-Key"
	headerPaystackSignature = "X-Paystack-Signature"

	maxRequestBodyBytes = 1 << 20 // 1MB
	requestTimeout      = 30 * time.Second
)

// API собирает HTTP-обработчики поверх сервисов checkout и сверки платежей.
type API struct {
	checkout   *checkout.Service
	dispatcher *reconcile.Dispatcher
	orders     domain.OrderRepository
	timeline   domain.TimelineRepository
	idem       domain.IdempotencyRepository
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics

	webhookSecret string
	resultURL     string
}

// Option настраивает API.
type Option func(*API)

// WithLogger задаёт logger транспортного слоя.
func WithLogger(logger *log.Entry) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics задаёт метрики; nil отключает их (для тестов).
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithIdempotency включает дедупликацию checkout-запросов по Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(a *API) {
		a.idem = repo
	}
}

// WithResultURL задаёт страницу результата, куда редиректится покупатель
// после синхронной верификации.
func WithResultURL(url string) Option {
	return func(a *API) {
		if url != "" {
			a.resultURL = url
		}
	}
}

// NewAPI создаёт транспортный слой. webhookSecret — общий с провайдером
// секрет для подписи webhook-уведомлений.
func NewAPI(
	checkoutService *checkout.Service,
	dispatcher *reconcile.Dispatcher,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	webhookSecret string,
	options ...Option,
) *API {
	a := &API{
		checkout:      checkoutService,
		dispatcher:    dispatcher,
		orders:        orders,
		timeline:      timeline,
		logger:        log.WithField("component", "httpapi"),
		webhookSecret: webhookSecret,
		resultURL:     "/checkout/result",
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Router собирает маршруты API.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", a.handleCheckout)
		r.Post("/checkout/retry", a.handleRetry)
		r.Post("/paystack/webhook", a.handleWebhook)
		r.Get("/paystack/verify", a.handleVerify)
		r.Get("/orders", a.handleListOrders)
		r.Get("/orders/{orderID}/timeline", a.handleTimeline)
	})

	return r
}
