package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ayurflow/clinic-api/internal/config"
	"github.com/ayurflow/clinic-api/internal/repository/postgres"
	"github.com/ayurflow/clinic-api/internal/worker"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// workerConfig holds the knobs specific to the maintenance worker; shared
// infrastructure settings come from the service config.
type workerConfig struct {
	RetentionDays   int           `envconfig:"AUDIT_RETENTION_DAYS" default:"365"`
	CleanupInterval time.Duration `envconfig:"AUDIT_CLEANUP_INTERVAL" default:"24h"`
	HealthPort      string        `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
}

func main() {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	var wcfg workerConfig
	if err := envconfig.Process("clinic", &wcfg); err != nil {
		log.Fatal(err, "failed to load worker configuration")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("clinic_worker")
	auditRepo := postgres.NewAuditRepository(db)
	cleanup := worker.NewAuditCleanupWorker(auditRepo, wcfg.RetentionDays, wcfg.CleanupInterval, log, m)

	setupHealthCheck(wcfg.HealthPort, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("audit cleanup worker started",
		"retention_days", wcfg.RetentionDays, "interval", wcfg.CleanupInterval.String())
	cleanup.Start(ctx)
}

func setupHealthCheck(port string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			log.Error(err, "health check server failed")
			os.Exit(1)
		}
	}()
}
