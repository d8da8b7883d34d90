package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/datquang03/studio-booking-engine/internal/booking"
	"github.com/datquang03/studio-booking-engine/internal/config"
	"github.com/datquang03/studio-booking-engine/internal/database"
	"github.com/datquang03/studio-booking-engine/internal/equipment"
	"github.com/datquang03/studio-booking-engine/internal/handlers"
	"github.com/datquang03/studio-booking-engine/internal/middleware"
	"github.com/datquang03/studio-booking-engine/internal/notifier"
	"github.com/datquang03/studio-booking-engine/internal/payment"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/internal/scheduling"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/events"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
	"github.com/datquang03/studio-booking-engine/pkg/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		appLog.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.Migrate(db); err != nil {
		appLog.Fatal("Failed to run database migrations", "error", err)
	}

	var redisClient *redis.Client
	redisClient, err = database.ConnectRedis(cfg.Redis)
	if err != nil {
		if cfg.Environment == "development" {
			appLog.Warn("Failed to connect to Redis, continuing without Redis", "error", err)
			redisClient = nil
		} else {
			appLog.Fatal("Failed to connect to Redis", "error", err)
		}
	}

	var natsConn *nats.Conn
	var eventPublisher *events.Publisher

	natsConn, err = events.Connect(cfg.NATS.URL)
	if err != nil {
		if cfg.Environment == "development" {
			appLog.Warn("Failed to connect to NATS, continuing without NATS", "error", err)
			natsConn = nil
			eventPublisher = events.NewNullPublisher(appLog)
		} else {
			appLog.Fatal("Failed to connect to NATS", "error", err)
		}
	} else {
		defer natsConn.Close()
		eventPublisher = events.NewPublisher(natsConn, appLog)
	}

	clk := clock.Real{}

	// Repositories — one per owned resource, per the resource-ownership
	// boundary (slots/equipment/bookings/payments never cross repositories).
	studioRepo := repository.NewStudioRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	detailRepo := repository.NewBookingDetailRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	sched := scheduling.NewScheduler(db, slotRepo, studioRepo, clk, appLog)
	if redisClient != nil {
		sched.SetCache(repository.NewCacheRepository(redisClient))
	}
	inventory := equipment.NewInventory(equipmentRepo)

	notificationClient := notifier.NewNotificationClient(cfg.Gateway.NotificationServiceURL)
	notif := notifier.New(eventPublisher, notificationClient, appLog)

	bookingEngine := booking.NewEngine(db, bookingRepo, detailRepo, policyRepo, studioRepo, equipmentRepo, sched, inventory, clk, notif, appLog)

	gateway := payment.NewPayOSGateway(cfg.Gateway.BaseURL, cfg.Gateway.ClientID, cfg.Gateway.APIKey, cfg.Gateway.ChecksumKey)
	orchestrator := payment.NewOrchestrator(paymentRepo, gateway, bookingEngine, notif, clk, appLog, cfg.Gateway.AllowInvalidSignature200)

	// Wired after construction to avoid a booking<->payment import cycle:
	// the orchestrator satisfies booking.RefundRequester structurally.
	bookingEngine.SetRefundRequester(orchestrator)

	cronScheduler := scheduler.New(bookingEngine, orchestrator, appLog)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	bookingHandler := handlers.NewBookingHandler(bookingEngine, appLog)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, appLog)
	healthHandler := handlers.NewHealthHandler(db, redisClient, natsConn, appLog)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.DefaultRequestLogging(appLog))
	router.Use(middleware.ErrorLogging(appLog))
	router.Use(middleware.DefaultCORS())
	router.Use(middleware.ExtractAuthContext())

	if redisClient != nil {
		router.Use(middleware.GeneralRateLimit(redisClient, appLog, cfg.RateLimit.RequestsPerMinute))
	}

	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/health/live", healthHandler.Live)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.RequireAuth())
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:bookingId", bookingHandler.GetBooking)
			bookings.POST("/:bookingId/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:bookingId/extension", bookingHandler.GetExtensionAvailability)
			bookings.POST("/:bookingId/extend", bookingHandler.ExtendBooking)

			staffBookings := bookings.Group("")
			staffBookings.Use(middleware.RequireStaff())
			{
				staffBookings.POST("/:bookingId/confirm", bookingHandler.ConfirmBooking)
				staffBookings.POST("/:bookingId/check-in", bookingHandler.CheckIn)
				staffBookings.POST("/:bookingId/check-out", bookingHandler.CheckOut)
				staffBookings.POST("/:bookingId/no-show", bookingHandler.MarkNoShow)
				staffBookings.PATCH("/:bookingId", bookingHandler.UpdateBooking)
			}
		}

		payments := v1.Group("/payments")
		payments.POST("/webhook", paymentHandler.HandleWebhook)
		{
			authed := payments.Group("")
			authed.Use(middleware.RequireAuth())
			authed.POST("/options/:bookingId", paymentHandler.GetPaymentOptions)
			authed.POST("/create/:bookingId", paymentHandler.CreateSession)
			authed.POST("/remaining/:bookingId", paymentHandler.CreateRemainder)
			authed.GET("/:paymentId", paymentHandler.GetPaymentStatus)
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Info("Starting Studio Booking Engine", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down Studio Booking Engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLog.Fatal("Server forced to shutdown", "error", err)
	}

	appLog.Info("Studio Booking Engine stopped")
}
