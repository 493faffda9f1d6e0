package audit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayurflow/clinic-api/internal/authz"
	"github.com/ayurflow/clinic-api/internal/model"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

var (
	testLog     = logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	testMetrics = metrics.NewMetrics("audit_service_test")
)

type memRepo struct {
	entries   []*model.AuditLog
	createErr error
}

func (r *memRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memRepo) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error) {
	return r.entries, int64(len(r.entries)), nil
}

func (r *memRepo) Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error) {
	return &model.AuditAggregate{TotalEntries: int64(len(r.entries))}, nil
}

func (r *memRepo) CountBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *memRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func sessionWith(role string) *model.Session {
	return &model.Session{
		UserID:      uuid.New(),
		ClinicID:    uuid.New(),
		Role:        role,
		IPAddress:   "10.0.0.7",
		UserAgent:   "test-agent",
		Permissions: authz.Resolve(role),
	}
}

func TestAuthorizeAllowsPermittedAction(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, testLog, testMetrics)

	err := svc.Authorize(context.Background(), sessionWith(authz.RoleFrontDesk),
		model.PermAppointmentsCreate, model.AuditResourceAppointment, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, repo.entries, "allowed checks do not write audit rows")
}

func TestAuthorizeDenialWritesFailureRow(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, testLog, testMetrics)
	sess := sessionWith(authz.RolePatient)

	err := svc.Authorize(context.Background(), sess,
		model.PermQueueCall, model.AuditResourceQueue, uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.From(err).Code)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, model.AuditResultFailure, entry.Result)
	assert.Equal(t, model.RiskMedium, entry.RiskLevel)
	assert.Equal(t, sess.UserID, entry.UserID)
	assert.Equal(t, "10.0.0.7", entry.IPAddress)
}

func TestAuthorizeNilSessionDenied(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, testLog, testMetrics)

	err := svc.Authorize(context.Background(), nil,
		model.PermAppointmentsRead, model.AuditResourceAppointment, uuid.Nil)
	require.Error(t, err)
}

func TestLogCapturesSessionAndMetadata(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, testLog, testMetrics)
	sess := sessionWith(authz.RoleDoctor)
	resourceID := uuid.New()

	svc.Log(context.Background(), sess, "appointments.confirm", model.AuditResourceAppointment,
		resourceID, model.AuditResultSuccess, &LogOptions{
			Metadata: map[string]interface{}{"prior_status": "SCHEDULED", "next_status": "CONFIRMED"},
		})

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, "appointments.confirm", entry.Action)
	assert.Equal(t, resourceID, entry.ResourceID)
	assert.Equal(t, model.RiskLow, entry.RiskLevel)
	assert.Contains(t, string(entry.Metadata), "CONFIRMED")
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestLogFailureNeverPropagates(t *testing.T) {
	repo := &memRepo{createErr: context.DeadlineExceeded}
	svc := NewService(repo, testLog, testMetrics)

	// Must not panic or surface the repository error.
	svc.Log(context.Background(), sessionWith(authz.RoleAdmin), "appointments.create",
		model.AuditResourceAppointment, uuid.New(), model.AuditResultSuccess, nil)
}
