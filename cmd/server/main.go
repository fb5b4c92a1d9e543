package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	httpHandlers "github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/marketplace-backend/internal/http/router"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/orderlock"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/scheduler"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Репозитории.
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)
	orderHistoryRepo := repository.NewOrderHistoryRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	scheduleRepo := repository.NewScheduleRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Per-order блокировки разделяются расчётным ядром и арбитражем.
	locks := orderlock.NewRegistry()

	// Сервисы.
	settlementService := service.NewSettlementService(orderRepo, ledgerRepo, scheduleRepo, locks, service.SettlementConfig{
		FeeBps:          cfg.PlatformFeeBps,
		ConfirmDeadline: cfg.ConfirmDeadline,
		DisputeWindow:   cfg.DisputeWindow,
	})
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, ledgerRepo, locks, cfg.PlatformFeeBps)
	paymentService := service.NewPaymentService(ledgerRepo)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, cfg.MinWithdrawal)
	notificationService := service.NewNotificationService(notificationRepo)

	settlementService.SetMetrics(m)
	disputeService.SetMetrics(m)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(notificationService)
	go hub.Run()

	settlementService.SetHub(hub)
	disputeService.SetHub(hub)

	// Планировщик автоподтверждения.
	sched := scheduler.New(scheduleRepo, settlementService, cfg.SchedulerInterval)
	sched.SetMetrics(m)
	sched.Start()
	defer sched.Stop()

	// HTTP хэндлеры.
	orderHandler := httpHandlers.NewOrderHandler(settlementService, orderHistoryRepo)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService, evidenceStorage)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentService)
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(withdrawalService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	webhookHandler := httpHandlers.NewWebhookHandler(settlementService, cfg.GatewayWebhookSecret)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, orderHandler, disputeHandler, paymentHandler, withdrawalHandler, notificationHandler, webhookHandler, wsHandler, healthHandler, tokenManager, registry)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
