package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayurflow/clinic-api/internal/repository"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// AuditCleanupWorker enforces the audit retention window and keeps the
// backlog gauge current. The audit table is append-only, so cleanup is the
// only deletion path in the system.
type AuditCleanupWorker struct {
	repo            repository.AuditRepository
	retentionDays   int
	cleanupInterval time.Duration
	logger          *logger.Logger
	metrics         *metrics.Metrics
}

func NewAuditCleanupWorker(repo repository.AuditRepository, retentionDays int, cleanupInterval time.Duration, log *logger.Logger, m *metrics.Metrics) *AuditCleanupWorker {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          log.WithComponent("audit-cleanup"),
		metrics:         m,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				w.logger.Error(err, "audit cleanup pass failed")
			}
		}
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	backlog, err := w.repo.CountBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to count expired audit logs: %w", err)
	}
	w.metrics.AuditBacklog.Set(float64(backlog))
	if backlog == 0 {
		return nil
	}

	rows, err := w.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	w.metrics.AuditBacklog.Set(0)

	w.logger.Info("cleaned up expired audit logs", "rows", rows, "cutoff", cutoff.Format(time.RFC3339))
	return nil
}
