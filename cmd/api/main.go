package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayurflow/clinic-api/internal/backend"
	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/config"
	"github.com/ayurflow/clinic-api/internal/coordinator"
	appointmentHandler "github.com/ayurflow/clinic-api/internal/handler/appointment"
	auditHandler "github.com/ayurflow/clinic-api/internal/handler/audit"
	healthHandler "github.com/ayurflow/clinic-api/internal/handler/health"
	queueHandler "github.com/ayurflow/clinic-api/internal/handler/queue"
	"github.com/ayurflow/clinic-api/internal/middleware"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/notifier"
	"github.com/ayurflow/clinic-api/internal/repository/postgres"
	"github.com/ayurflow/clinic-api/internal/router"
	appointmentService "github.com/ayurflow/clinic-api/internal/service/appointment"
	auditService "github.com/ayurflow/clinic-api/internal/service/audit"
	queueService "github.com/ayurflow/clinic-api/internal/service/queue"
	syncchan "github.com/ayurflow/clinic-api/internal/sync"
	"github.com/ayurflow/clinic-api/pkg/auth"
	"github.com/ayurflow/clinic-api/pkg/lock"
	"github.com/ayurflow/clinic-api/pkg/logger"
	messagingredis "github.com/ayurflow/clinic-api/pkg/messaging/redis"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

func main() {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load configuration")
	}

	m := metrics.NewMetrics("clinic")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := messagingredis.NewRedisBroker(messagingredis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	store := backend.NewClient(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
		RetryAttempts:  cfg.Backend.RetryAttempts,
		RetryDelay:     cfg.Backend.RetryDelay,
	}, log, m)

	mirror := cache.NewMirror()
	coord := coordinator.New(mirror, log, m)
	publisher := syncchan.NewPublisher(broker, log)
	locker := lock.New(broker.Client(), cfg.Redis.LockTTL)

	auditRepo := postgres.NewAuditRepository(db)
	auditor := auditService.NewService(auditRepo, log, m)
	appointmentSvc := appointmentService.NewService(store, coord, mirror, auditor, publisher, log)
	queueSvc := queueService.NewService(store, mirror, auditor, publisher, locker, log, m)

	channel := syncchan.NewChannel(broker, mirror, coord, syncchan.Config{
		HeartbeatInterval: cfg.Sync.HeartbeatInterval,
		HeartbeatMisses:   cfg.Sync.HeartbeatMisses,
		ReconnectBase:     cfg.Sync.ReconnectBase,
		ReconnectMax:      cfg.Sync.ReconnectMax,
	}, log, m)
	channel.RegisterResync(model.ResourceFamilyAppointments, appointmentSvc.Resync)
	channel.RegisterResync(model.ResourceFamilyQueue, queueSvc.Resync)

	if cfg.Email.Enabled {
		mailer := notifier.New(notifier.Config{
			Enabled:     true,
			SMTPHost:    cfg.Email.Host,
			SMTPPort:    cfg.Email.Port,
			SMTPUser:    cfg.Email.Username,
			SMTPPass:    cfg.Email.Password,
			FromAddress: cfg.Email.From,
			FrontDesk:   cfg.Email.FrontDesk,
		}, log)
		channel.Subscribe(model.ResourceFamilyAppointments, mailer.HandleAppointmentEvent)
	}

	authMw := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.JWT.Secret))

	r := router.New(authMw, healthHandler.NewHandler(db, broker, channel), log, router.Config{
		RateLimit:      rate.Limit(cfg.Server.RateLimitRPS),
		RateBurst:      cfg.Server.RateLimitBurst,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPrefix:  "clinic_http",
	},
		appointmentHandler.NewHandler(appointmentSvc),
		queueHandler.NewHandler(queueSvc),
		auditHandler.NewHandler(auditor),
	)
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go channel.Run(ctx)
	go publisher.RunHeartbeat(ctx, cfg.Sync.HeartbeatInterval)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("server exited")
}
