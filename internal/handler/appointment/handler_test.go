package appointment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayurflow/clinic-api/internal/authz"
	"github.com/ayurflow/clinic-api/internal/backend"
	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/coordinator"
	"github.com/ayurflow/clinic-api/internal/model"
	appointmentService "github.com/ayurflow/clinic-api/internal/service/appointment"
	auditService "github.com/ayurflow/clinic-api/internal/service/audit"
	syncchan "github.com/ayurflow/clinic-api/internal/sync"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

var (
	testLog     = logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	testMetrics = metrics.NewMetrics("appointment_handler_test")
)

type fakeStore struct {
	appointments map[uuid.UUID]*model.Appointment
}

func (s *fakeStore) CreateAppointment(ctx context.Context, apt *model.Appointment) (*model.Appointment, error) {
	out := apt.Clone()
	out.ID = uuid.New()
	out.Version = 1
	s.appointments[out.ID] = out
	return out.Clone(), nil
}

func (s *fakeStore) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := s.appointments[id]
	if !ok {
		return nil, apperrors.NewNotFound(apperrors.CodeAppointmentNotFound, "appointment")
	}
	return apt.Clone(), nil
}

func (s *fakeStore) UpdateAppointment(ctx context.Context, id uuid.UUID, patch map[string]interface{}, fromVersion int64) (*model.Appointment, error) {
	apt, ok := s.appointments[id]
	if !ok {
		return nil, apperrors.NewNotFound(apperrors.CodeAppointmentNotFound, "appointment")
	}
	out := apt.Clone()
	out.Version++
	s.appointments[id] = out
	return out.Clone(), nil
}

func (s *fakeStore) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	var out []*model.Appointment
	for _, apt := range s.appointments {
		out = append(out, apt.Clone())
	}
	return out, len(out), nil
}

func (s *fakeStore) GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*model.DoctorAvailability, error) {
	return &model.DoctorAvailability{DoctorID: doctorID, Date: date}, nil
}

func (s *fakeStore) ListQueue(ctx context.Context, queueType model.QueueType) ([]*model.QueueEntry, error) {
	return nil, nil
}

func (s *fakeStore) ListQueueHistory(ctx context.Context, since time.Time) ([]*model.QueueEntry, error) {
	return nil, nil
}

func (s *fakeStore) CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) (*model.QueueEntry, error) {
	return nil, nil
}

func (s *fakeStore) CallNext(ctx context.Context, queueType model.QueueType) (*model.QueueEntry, error) {
	return nil, backend.ErrEmptyQueue
}

var _ backend.Store = (*fakeStore)(nil)

type memAuditRepo struct{}

func (memAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error { return nil }
func (memAuditRepo) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error) {
	return nil, 0, nil
}
func (memAuditRepo) Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error) {
	return &model.AuditAggregate{}, nil
}
func (memAuditRepo) CountBefore(ctx context.Context, before time.Time) (int64, error) { return 0, nil }
func (memAuditRepo) Cleanup(ctx context.Context, before time.Time) (int64, error)     { return 0, nil }

type nopBroker struct{}

func (nopBroker) Publish(ctx context.Context, channel string, message interface{}) error { return nil }
func (nopBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}
func (nopBroker) Healthy(ctx context.Context) error { return nil }
func (nopBroker) Close() error                      { return nil }

func newTestRouter(store *fakeStore, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	mirror := cache.NewMirror()
	coord := coordinator.New(mirror, testLog, testMetrics)
	auditor := auditService.NewService(memAuditRepo{}, testLog, testMetrics)
	publisher := syncchan.NewPublisher(nopBroker{}, testLog)
	svc := appointmentService.NewService(store, coord, mirror, auditor, publisher, testLog)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("session", &model.Session{
			UserID:      uuid.New(),
			ClinicID:    uuid.New(),
			Role:        role,
			Permissions: authz.Resolve(role),
		})
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func seedAppointments(store *fakeStore, n int) {
	for i := 0; i < n; i++ {
		store.CreateAppointment(context.Background(), &model.Appointment{
			PatientID: uuid.New(),
			DoctorID:  uuid.New(),
			Status:    model.AppointmentStatusScheduled,
		})
	}
}

func TestListReturnsPaginationMeta(t *testing.T) {
	store := &fakeStore{appointments: make(map[uuid.UUID]*model.Appointment)}
	seedAppointments(store, 3)
	r := newTestRouter(store, authz.RoleFrontDesk)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?page=1&page_size=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Appointments []*model.Appointment `json:"appointments"`
			Pagination   struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				Total      int `json:"total"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data.Pagination.Page)
	assert.Equal(t, 2, resp.Data.Pagination.PageSize)
	assert.Equal(t, 3, resp.Data.Pagination.Total)
	assert.Equal(t, 2, resp.Data.Pagination.TotalPages)
}

func TestGetUnknownAppointmentIs404(t *testing.T) {
	store := &fakeStore{appointments: make(map[uuid.UUID]*model.Appointment)}
	r := newTestRouter(store, authz.RoleFrontDesk)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
