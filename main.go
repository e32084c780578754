// File: swiftaid/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swiftaid/config"
	"swiftaid/cron"
	"swiftaid/database"
	bookingRepoPkg "swiftaid/database/repository/booking"
	paymentRepoPkg "swiftaid/database/repository/payment"
	providerRepoPkg "swiftaid/database/repository/provider"
	"swiftaid/handlers"
	"swiftaid/middleware"
	"swiftaid/routes"
	"swiftaid/services/booking"
	"swiftaid/services/deadline"
	"swiftaid/services/matching"
	"swiftaid/services/notification"
	"swiftaid/services/payment"
	"swiftaid/services/tasks"
	"swiftaid/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitRedis()
	stripe.Key = config.AppConfig.StripeKey

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(cors.Default())
	router.Use(middleware.RateLimitMiddleware())

	// repositories.
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	paymentRepo := paymentRepoPkg.NewMongoPaymentRepo()
	providerRepo := providerRepoPkg.NewMongoProviderRepo()

	if err := bookingRepo.EnsureIndexes(); err != nil {
		logger.Sugar().Fatalf("main: failed to ensure booking indexes: %v", err)
	}
	if err := providerRepo.EnsureIndexes(); err != nil {
		logger.Sugar().Fatalf("main: failed to ensure provider indexes: %v", err)
	}

	// services.
	orchestrator := payment.NewOrchestrator(
		paymentRepo,
		payment.NewStripeGateway(),
		config.AppConfig.Currency,
		config.AppConfig.PaymentMaxAttempts,
		time.Duration(config.AppConfig.PaymentRetryBaseMillis)*time.Millisecond,
		time.Duration(config.AppConfig.GatewayTimeoutSeconds)*time.Second,
		logger,
	)

	matchingService := &matching.DefaultMatchingService{
		ProviderRepo: providerRepo,
		CacheClient:  utils.GetCacheClient(),
		Weights: matching.Weights{
			Distance: config.AppConfig.RankWeightDistance,
			Rating:   config.AppConfig.RankWeightRating,
			Response: config.AppConfig.RankWeightResponse,
			Urgency:  config.AppConfig.RankWeightUrgency,
		},
		TopN:          config.AppConfig.RankTopN,
		MaxDistanceKm: config.AppConfig.RankMaxDistanceKm,
		Logger:        logger,
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
	alertDispatcher := tasks.NewAlertDispatcher(redisOpt, logger)

	bookingService := booking.NewBookingService(
		bookingRepo,
		orchestrator,
		matchingService,
		alertDispatcher,
		time.Duration(config.AppConfig.SOSResponseWindowMin)*time.Minute,
		time.Duration(config.AppConfig.NormalResponseWindowMin)*time.Minute,
		logger,
	)

	deadlineManager := deadline.NewManager(bookingService, bookingRepo, logger)
	bookingService.Deadlines = deadlineManager

	// Timers are not durable: reconcile pending bookings before serving.
	if err := deadlineManager.Recover(context.Background()); err != nil {
		logger.Sugar().Fatalf("main: deadline recovery sweep failed: %v", err)
	}

	notificationService := &notification.DefaultNotificationService{Logger: logger}
	cron.InitAlertWorker(notificationService)

	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	providerHandler := handlers.NewProviderHandler(matchingService, logger)
	routes.RegisterRoutes(router, bookingHandler, providerHandler)

	utils.StartHealthMonitor(
		[]*redis.Client{utils.GetCacheClient(), utils.GetQueueClient()},
		database.MongoClient,
	)

	srv := &http.Server{
		Addr:    ":" + config.AppConfig.AppPort,
		Handler: router,
	}

	go func() {
		logger.Sugar().Infof("main: listening on :%s", config.AppConfig.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("main: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: forced shutdown: %v", err)
	}
	if err := alertDispatcher.Close(); err != nil {
		logger.Sugar().Errorf("main: failed to close alert dispatcher: %v", err)
	}
	if err := database.MongoClient.Disconnect(ctx); err != nil {
		logger.Sugar().Errorf("main: failed to disconnect mongo: %v", err)
	}
}
