package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/repository"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// Service is the permission and audit gate. Every mutating entry point calls
// Authorize before touching the backend; denials short-circuit the mutation
// and still leave a FAILURE row so denied attempts stay traceable.
type Service struct {
	repo    repository.AuditRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(repo repository.AuditRepository, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, logger: log, metrics: m}
}

type LogOptions struct {
	Metadata  map[string]interface{}
	RiskLevel model.RiskLevel
}

// Authorize checks the session's capability set for the action and records
// the decision. The returned error is nil exactly when the caller may proceed.
func (s *Service) Authorize(ctx context.Context, sess *model.Session, perm model.Permission, resource string, resourceID uuid.UUID) error {
	if sess.Has(perm) {
		return nil
	}

	s.metrics.AuthDenials.WithLabelValues(string(perm)).Inc()
	s.Log(ctx, sess, string(perm), resource, resourceID, model.AuditResultFailure, &LogOptions{
		RiskLevel: model.RiskMedium,
		Metadata:  map[string]interface{}{"reason": "permission denied"},
	})
	return apperrors.NewPermissionDenied(string(perm))
}

// Log writes one audit entry. Audit failures are logged but never fail the
// business operation they describe.
func (s *Service) Log(ctx context.Context, sess *model.Session, action, resource string, resourceID uuid.UUID, result model.AuditResult, opts *LogOptions) {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Result:     result,
		RiskLevel:  model.RiskLow,
		CreatedAt:  time.Now(),
	}
	if sess != nil {
		entry.UserID = sess.UserID
		entry.ClinicID = sess.ClinicID
		entry.IPAddress = sess.IPAddress
		entry.UserAgent = sess.UserAgent
	}
	if opts != nil {
		if opts.RiskLevel != "" {
			entry.RiskLevel = opts.RiskLevel
		}
		if opts.Metadata != nil {
			meta, err := json.Marshal(opts.Metadata)
			if err != nil {
				s.logger.Error(err, "failed to marshal audit metadata")
			} else {
				entry.Metadata = meta
			}
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to write audit entry",
			"action", action, "resource", resource)
		return
	}
	s.metrics.AuditWrites.WithLabelValues(string(result)).Inc()
}

func (s *Service) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error) {
	return s.repo.List(ctx, filters, limit, offset)
}

func (s *Service) Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error) {
	return s.repo.Aggregate(ctx, from, to)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}

func (s *Service) CountBefore(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.CountBefore(ctx, before)
}
