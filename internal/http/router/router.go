package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	orderHandler *handlers.OrderHandler,
	disputeHandler *handlers.DisputeHandler,
	paymentHandler *handlers.PaymentHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	notificationHandler *handlers.NotificationHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
	registry *prometheus.Registry,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	// Webhook шлюза: аутентификация — подпись тела, не JWT. Rate limit
	// защищает от флуда невалидными подписями.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit*10, cfg.RateLimitPeriod))
	{
		webhooks.POST("/payment", webhookHandler.HandleCapture)
	}

	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/orders", middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod), orderHandler.CreateOrder)
		protected.GET("/orders", orderHandler.ListOrders)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.GetOrder)
		protected.GET("/orders/:id/history", middleware.UUIDValidator("id"), orderHandler.GetOrderHistory)
		protected.POST("/orders/:id/deliver", middleware.UUIDValidator("id"), orderHandler.MarkDelivered)
		protected.POST("/orders/:id/confirm", middleware.UUIDValidator("id"), orderHandler.ConfirmDelivery)
		protected.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), orderHandler.CancelOrder)

		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.OpenDispute)
		protected.GET("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetOrderDispute)
		protected.GET("/disputes", disputeHandler.ListMyDisputes)
		protected.POST("/disputes/:id/evidence", middleware.UUIDValidator("id"), disputeHandler.UploadEvidence)

		protected.GET("/balance", paymentHandler.GetBalance)
		protected.POST("/balance/deposit", paymentHandler.Deposit)
		protected.GET("/balance/transactions", paymentHandler.ListTransactions)

		protected.POST("/withdrawals", withdrawalHandler.CreateWithdrawal)
		protected.GET("/withdrawals", withdrawalHandler.ListWithdrawals)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	// Админ-панель: арбитраж и обработка выводов.
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminMiddleware())
	{
		admin.GET("/disputes", disputeHandler.ListOpenDisputes)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.ResolveDispute)
		admin.GET("/withdrawals", withdrawalHandler.ListPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", middleware.UUIDValidator("id"), withdrawalHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", middleware.UUIDValidator("id"), withdrawalHandler.RejectWithdrawal)
	}

	return r
}
