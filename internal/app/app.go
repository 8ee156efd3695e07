package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/orchestrator"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/pipeline"
	"github.com/vladislavdragonenkov/storefront/internal/service/queue"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run собирает все подсистемы storefront и крутит их до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Платёжный провайдер и каталог внешние; здесь их место занимают
	// mock и статический справочник.
	paymentSvc := payment.NewMockService()
	catalogSvc := catalog.NewStaticCatalog(demoProducts()...)

	ledgerSvc := ledger.NewService(deps.Inventory, deps.Outbox, logger.WithField("layer", "ledger"))
	queueSvc := queue.NewService(queue.DefaultConfig(), deps.Customers, logger.WithField("layer", "queue"))
	orchestratorSvc := orchestrator.NewService(deps.Orders, ledgerSvc, deps.Customers, catalogSvc, deps.Outbox, logger.WithField("layer", "orchestrator"))
	ordersSvc := orders.NewService(deps.Orders, ledgerSvc, paymentSvc, deps.Outbox, logger.WithField("layer", "orders"))

	if deps.Store == nil {
		seedDemoData(deps, ledgerSvc, logger)
	}

	server := httpapi.NewServer(orchestratorSvc, ordersSvc, ledgerSvc, queueSvc, deps.Idempotency, logger.WithField("layer", "httpapi"))

	// Redis-гейт допуска (опционально).
	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		redisClient = initRedisGate(ctx, cfg.RedisAddr, server, logger)
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis client")
			}
		}
	}()

	// Kafka producer и публикаторы outbox (опционально).
	publishers := initKafka(cfg.KafkaBrokers, logger)
	defer publishers.close(logger)

	if publishers.producer != nil {
		if monitor := startDLQMonitor(ctx, cfg.KafkaBrokers, logger); monitor != nil {
			defer func() {
				if err := monitor.Stop(); err != nil {
					logger.WithError(err).Warn("failed to stop dlq monitor")
				}
			}()
		}
	}

	// Фоновые воркеры: конвейер заказов, публикация outbox, очистка
	// просроченных idempotency-ключей.
	pipelineWorker := pipeline.NewWorker(
		deps.Orders,
		ordersSvc,
		orchestratorSvc,
		paymentSvc,
		ledgerSvc,
		deps.Outbox,
		logger.WithField("layer", "pipeline"),
		pipeline.WithQueue(queueSvc),
		pipeline.WithInterval(cfg.PipelineInterval),
		pipeline.WithStuckThreshold(cfg.StuckThreshold),
	)
	go pipelineWorker.Run(ctx)

	if publishers.outbox != nil {
		outboxCfg := outbox.DefaultConfig()
		outboxCfg.PollInterval = cfg.OutboxInterval
		outboxWorker := outbox.NewWorker(
			deps.Outbox,
			publishers.outbox,
			publishers.dlq,
			outboxCfg,
			logger.WithField("layer", "outbox"),
		)
		go outboxWorker.Run(ctx)
	} else {
		logger.Info("outbox worker is not started: no kafka publisher configured")
	}

	sweeper := idempotency.NewSweeper(
		deps.Idempotency,
		idempotency.DefaultSweepConfig(),
		logger.WithField("layer", "idempotency"),
	)
	go sweeper.Run(ctx)

	// HTTP health checks.
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.Register("postgres", deps.HealthCheck)
	}
	if redisClient != nil {
		client := redisClient
		healthHandler.Register("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// initRedisGate подключает квотный отсекатель к HTTP-слою. Недоступный
// Redis не блокирует старт: заказ проходит в леджер без квоты.
func initRedisGate(ctx context.Context, addr string, server *httpapi.Server, logger *log.Entry) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, admission gate disabled")
		_ = client.Close()
		return nil
	}

	server.WithGate(redisstore.NewGate(client))
	logger.WithField("addr", addr).Info("admission gate initialized")
	return client
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus
// и health-эндпоинты.
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
