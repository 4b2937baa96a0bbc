package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/service/reconcile"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// Run собирает зависимости и запускает HTTP API, метрики и фоновые
// воркеры. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	provider, err := initPaymentProvider(cfg, logger)
	if err != nil {
		return err
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()

	callbackURL := ""
	if cfg.CallbackBaseURL != "" {
		callbackURL = cfg.CallbackBaseURL + "/api/paystack/verify"
	}

	checkoutSvc := checkout.NewService(
		deps.orders,
		deps.products,
		provider,
		deps.outboxRepo,
		deps.timelineRepo,
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithCallbackURL(callbackURL),
	)

	dispatcher := reconcile.NewDispatcher(
		deps.orders,
		deps.reconcileStore,
		provider,
		deps.outboxRepo,
		deps.timelineRepo,
		reconcile.WithPayments(deps.payments),
		reconcile.WithLogger(logger.WithField("layer", "reconcile")),
		reconcile.WithMetrics(checkoutMetrics),
	)

	api := httpapi.NewAPI(
		checkoutSvc,
		dispatcher,
		deps.orders,
		deps.timelineRepo,
		cfg.PaystackSecret,
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithMetrics(checkoutMetrics),
		httpapi.WithIdempotency(deps.idempotencyRepo),
		httpapi.WithResultURL(cfg.ResultURL),
	)

	// Kafka опционален: без brokers события копятся в outbox и не публикуются.
	kafkaProducer, kafkaErr := initKafkaProducer(cfg.KafkaBrokers, logger)
	if kafkaErr != nil {
		logger.WithError(kafkaErr).Warn("continuing without kafka")
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var outboxDone chan struct{}
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(
			deps.outboxRepo,
			publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		outboxDone = make(chan struct{})
		go func() {
			defer close(outboxDone)
			worker.Run(workerCtx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox publishing is disabled")
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cleanupWorker.Run(workerCtx)
	}()

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		shutdownWorker("outbox worker", stopWorkers, outboxDone, logger)
		shutdownWorker("idempotency cleanup worker", stopWorkers, cleanupDone, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()

	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		shutdownWorker("outbox worker", stopWorkers, outboxDone, logger)
		shutdownWorker("idempotency cleanup worker", stopWorkers, cleanupDone, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// initPaymentProvider выбирает реальный Paystack-клиент либо mock, когда
// секрет не задан.
func initPaymentProvider(cfg Config, logger *log.Entry) (domain.PaymentProvider, error) {
	if cfg.PaystackSecret == "" {
		logger.Warn("PAYSTACK_SECRET is not set, using mock payment provider")
		return payment.NewMockProvider(), nil
	}
	return payment.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecret, log.StandardLogger())
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus
// вместе с health-эндпоинтами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownWorker отменяет контекст воркера и ждёт его завершения с таймаутом.
func shutdownWorker(name string, cancel func(), done chan struct{}, logger *log.Entry) {
	if done == nil {
		return
	}
	cancel()
	select {
	case <-done:
		logger.Infof("%s остановлен", name)
	case <-time.After(5 * time.Second):
		logger.Warnf("%s не остановился за таймаут", name)
	}
}
