package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heartlink/backend/docs"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/database"
	"github.com/heartlink/backend/internal/gateway"
	"github.com/heartlink/backend/internal/handlers"
	"github.com/heartlink/backend/internal/jobs"
	mW "github.com/heartlink/backend/internal/middleware"
	"github.com/heartlink/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title HeartLink Wallet API
// @version 1.0
// @description Monetary core for the HeartLink dating platform: wallets, gifts, message unlocks, withdrawals and subscriptions
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	viper.BindEnv("gateway.api_key", "GATEWAY_API_KEY")
	viper.BindEnv("gateway.webhook_secret", "GATEWAY_WEBHOOK_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "HeartLink Wallet API"
	docs.SwaggerInfo.Description = "Monetary core for the HeartLink dating platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	walletCfg := config.LoadWalletConfig()

	ledger := services.NewLedgerService(db)
	fees := services.NewFeePolicy(walletCfg)
	notifier := services.NewRedisNotifier(redisClient)
	connections := services.NewSQLConnectionStore(db)
	payouts := services.NewPayoutService(redisClient, walletCfg)
	transfers := services.NewTransferEngine(db, ledger, fees, walletCfg, connections, payouts, notifier)
	wallet := services.NewWalletService(ledger, transfers)
	withdrawals := services.NewWithdrawalService(db, ledger, walletCfg, notifier)
	tiers := services.NewSQLTierStore(db)
	gatewayClient := gateway.NewHTTPClient()
	payments := services.NewPaymentService(db, ledger, gatewayClient, walletCfg, tiers, notifier)
	webhook := handlers.NewWebhookHandler(payments)

	// Background jobs
	scheduler := jobs.NewScheduler(payments)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for payout provider logos
	r.Handle("/static/provider-logos/*", http.StripPrefix("/static/provider-logos/",
		mW.StaticFileServer("./static/provider-logos")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Get("/wallet/payout-providers", payouts.GetProviders)
		r.Post("/webhooks/gateway/checkout", webhook.HandleCheckoutEvent)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", wallet.GetBalance)
			r.Get("/wallet/transactions", wallet.GetTransactions)
			r.Post("/wallet/gifts", wallet.SendGift)
			r.Post("/wallet/messages/unlock", wallet.UnlockMessage)
			r.Post("/wallet/withdrawals", wallet.RequestWithdrawal)

			// Subscription endpoints
			r.Post("/wallet/subscriptions/checkout", payments.CreateCheckout)
			r.Post("/wallet/subscriptions/checkout/{gatewayTransactionId}/verify", payments.VerifyCheckout)
			r.Get("/wallet/subscriptions/me", payments.GetMySubscription)

			// Ops endpoints
			r.Get("/admin/withdrawals", withdrawals.ListPendingWithdrawals)
			r.Put("/admin/withdrawals/{requestId}/paid", withdrawals.MarkWithdrawalPaid)
			r.Put("/admin/withdrawals/{requestId}/reject", withdrawals.RejectWithdrawal)
			r.Get("/admin/earnings", wallet.GetEarningsReport)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
