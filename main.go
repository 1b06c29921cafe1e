package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapnow/config"
	"snapnow/cron"
	"snapnow/database"
	bookingRepo "snapnow/database/repository/booking"
	locationRepo "snapnow/database/repository/location"
	"snapnow/handlers"
	"snapnow/middleware"
	"snapnow/routes"
	"snapnow/services/livelocation"
	"snapnow/services/window"
	"snapnow/utils"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		if config.AppConfig.JWTSecret == "" {
			logger.Fatal("JWT_SECRET must be set in production")
		}
		if len(config.AppConfig.AllowedOrigins) == 0 {
			logger.Warn("ALLOWED_ORIGINS is empty; browser clients will be refused")
		}
	}

	database.InitDB()
	utils.InitRedis()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// repositories.
	bookings := bookingRepo.NewCachedBookingRepo(
		bookingRepo.NewMongoBookingRepo(database.Database()),
		utils.GetCacheClient(),
		time.Minute,
		logger,
	)
	locations := locationRepo.NewRedisLocationRepo(utils.GetLocationClient(), logger)

	taskClient := asynq.NewClient(cron.TaskQueueRedisOpt())
	defer taskClient.Close()

	// services.
	liveLocationService := &livelocation.DefaultLiveLocationService{
		Bookings:    bookings,
		Locations:   locations,
		Tasks:       taskClient,
		Clock:       clock.New(),
		Zone:        config.Location(),
		TTL:         config.AppConfig.LiveLocationTTL,
		ClosePolicy: window.CloseAfter(config.AppConfig.WindowCloseAfter),
		Logger:      logger,
	}
	logger.Info("main: live location service ready",
		zap.String("closePolicy", liveLocationService.ClosePolicy.String()),
		zap.Duration("ttl", liveLocationService.TTL))

	worker := cron.InitExpiryWorker(liveLocationService)
	utils.StartHealthMonitor(rootCtx, 15*time.Second,
		[]*redis.Client{utils.GetCacheClient(), utils.GetLocationClient()},
		database.MongoClient)

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLoggerMiddleware(logger))
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	handlerBundle := handlers.NewHandlerBundle(handlers.NewLiveLocationHandler(liveLocationService))
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	worker.Shutdown()
	utils.CloseRedis()
	if err := database.Disconnect(ctx); err != nil {
		logger.Sugar().Warnf("main: mongo disconnect: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
