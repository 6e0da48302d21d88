package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"adboard-backend/internal/common/cache"
	"adboard-backend/internal/common/config"
	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/common/middleware"
	dealHTTP "adboard-backend/internal/features/deal/delivery/http"
	dealRepo "adboard-backend/internal/features/deal/repository/postgres"
	dealService "adboard-backend/internal/features/deal/service"
	"adboard-backend/internal/features/notifications"
	statsHTTP "adboard-backend/internal/features/stats/delivery/http"
	statsRepo "adboard-backend/internal/features/stats/repository/postgres"
	statsService "adboard-backend/internal/features/stats/service"
	"adboard-backend/internal/platform/postgres"
	"adboard-backend/internal/platform/redis"
	"adboard-backend/internal/platform/telegram"
	"adboard-backend/internal/platform/ton"
	"adboard-backend/internal/scheduler"
	"adboard-backend/internal/workers"
)

func main() {
	cfg := config.Load()
	logger.Init("adboard-backend", cfg.Debug)
	log := logger.With("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgresClient, err := postgres.NewClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer postgresClient.Close()

	redisClient, err := redis.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	cacheService := cache.NewCacheService(redisClient.Client)
	tgClient := telegram.NewClient(cfg)

	escrow, err := ton.NewEscrow(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize escrow")
	}

	dealRepository := dealRepo.NewPostgresRepository(postgresClient.GetDB())
	statsRepository := statsRepo.NewPostgresRepository(postgresClient.GetDB())

	notifier := notifications.NewService(tgClient)
	eventPublisher := dealService.NewRedisEventPublisher(redisClient.Client)
	sched := scheduler.New(redisClient.Client, cfg)

	statsSvc := statsService.NewService(statsRepository, cacheService, cfg)
	dealSvc := dealService.NewService(
		dealRepository, escrow, tgClient, notifier, eventPublisher, sched, statsSvc, cfg)
	dealSvc.RegisterJobHandlers(sched)

	collector := statsService.NewCollector(statsSvc, dealRepository, tgClient, cfg)
	consumer := workers.NewEventConsumer(redisClient, notifier)

	go sched.Run(ctx)
	go collector.Run(ctx)
	go consumer.Run(ctx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler(logger.With("http")))
	router.Use(middleware.Recovery(logger.With("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "init_data"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		if err := postgresClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	dealHTTP.NewDealHandler(dealSvc, cfg).RegisterRoutes(api)
	statsHTTP.NewStatsHandler(statsSvc, collector, cfg).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("http server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
