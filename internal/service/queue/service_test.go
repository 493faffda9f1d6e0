package queue

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayurflow/clinic-api/internal/authz"
	"github.com/ayurflow/clinic-api/internal/backend"
	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/model"
	auditService "github.com/ayurflow/clinic-api/internal/service/audit"
	syncchan "github.com/ayurflow/clinic-api/internal/sync"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/lock"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

var (
	testLog     = logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	testMetrics = metrics.NewMetrics("queue_service_test")
)

// fakeQueueStore reproduces the backend's call-next ordering contract.
type fakeQueueStore struct {
	backend.Store
	entries map[uuid.UUID]*model.QueueEntry
	history []*model.QueueEntry
	nextVer int64
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{entries: make(map[uuid.UUID]*model.QueueEntry), nextVer: 1}
}

func (s *fakeQueueStore) ListQueue(ctx context.Context, queueType model.QueueType) ([]*model.QueueEntry, error) {
	var out []*model.QueueEntry
	for _, e := range s.entries {
		if e.QueueType == queueType {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *fakeQueueStore) ListQueueHistory(ctx context.Context, since time.Time) ([]*model.QueueEntry, error) {
	var out []*model.QueueEntry
	for _, e := range s.history {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *fakeQueueStore) CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) (*model.QueueEntry, error) {
	out := entry.Clone()
	out.ID = uuid.New()
	out.Version = s.nextVer
	s.nextVer++
	s.entries[out.ID] = out
	return out.Clone(), nil
}

func (s *fakeQueueStore) CallNext(ctx context.Context, queueType model.QueueType) (*model.QueueEntry, error) {
	entries, _ := s.ListQueue(ctx, queueType)
	next := nextEligible(entries)
	if next == nil {
		return nil, backend.ErrEmptyQueue
	}
	stored := s.entries[next.ID]
	stored.Status = model.QueueEntryStatusInProgress
	now := time.Now()
	stored.DequeuedAt = &now
	stored.Version++
	s.history = append(s.history, stored.Clone())
	return stored.Clone(), nil
}

var _ backend.Store = (*fakeQueueStore)(nil)

type memAuditRepo struct {
	entries []*model.AuditLog
}

func (r *memAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*model.AuditLog, int64, error) {
	return r.entries, int64(len(r.entries)), nil
}

func (r *memAuditRepo) Aggregate(ctx context.Context, from, to time.Time) (*model.AuditAggregate, error) {
	return &model.AuditAggregate{}, nil
}

func (r *memAuditRepo) CountBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *memAuditRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type nopBroker struct{}

func (nopBroker) Publish(ctx context.Context, channel string, message interface{}) error { return nil }
func (nopBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}
func (nopBroker) Healthy(ctx context.Context) error { return nil }
func (nopBroker) Close() error                      { return nil }

// fakeLocker grants or denies the call-next lock deterministically.
type fakeLocker struct {
	denied bool
	held   []string
}

func (l *fakeLocker) Acquire(ctx context.Context, name string) (func(), error) {
	if l.denied {
		return nil, lock.ErrNotAcquired
	}
	l.held = append(l.held, name)
	return func() {}, nil
}

type fixture struct {
	svc    *Service
	store  *fakeQueueStore
	locker *fakeLocker
	audit  *memAuditRepo
}

func newFixture() *fixture {
	store := newFakeQueueStore()
	mirror := cache.NewMirror()
	auditRepo := &memAuditRepo{}
	auditor := auditService.NewService(auditRepo, testLog, testMetrics)
	publisher := syncchan.NewPublisher(nopBroker{}, testLog)
	locker := &fakeLocker{}
	return &fixture{
		svc:    NewService(store, mirror, auditor, publisher, locker, testLog, testMetrics),
		store:  store,
		locker: locker,
		audit:  auditRepo,
	}
}

func session(role string) *model.Session {
	return &model.Session{
		UserID:      uuid.New(),
		ClinicID:    uuid.New(),
		Role:        role,
		Permissions: authz.Resolve(role),
	}
}

func addPatient(t *testing.T, f *fixture, sess *model.Session, queueType model.QueueType, prio model.Priority) *model.QueueEntry {
	t.Helper()
	entry, err := f.svc.AddToQueue(context.Background(), sess, &model.AddToQueueRequest{
		PatientID: uuid.New(),
		QueueType: queueType,
		Priority:  prio,
	})
	require.NoError(t, err)
	return entry
}

func TestAddToQueueDefaultsToWaitingNormal(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	entry, err := f.svc.AddToQueue(context.Background(), sess, &model.AddToQueueRequest{
		PatientID: uuid.New(),
		QueueType: model.QueueTypeAgnikarma,
	})
	require.NoError(t, err)
	assert.Equal(t, model.QueueEntryStatusWaiting, entry.Status)
	assert.Equal(t, model.PriorityNormal, entry.Priority)
	assert.False(t, entry.EnqueuedAt.IsZero())
}

func TestAddToQueueRejectsUnknownType(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	_, err := f.svc.AddToQueue(context.Background(), sess, &model.AddToQueueRequest{
		PatientID: uuid.New(),
		QueueType: "cryotherapy",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.From(err).Code)
}

func TestGetQueueOrdersAndPositions(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	addPatient(t, f, sess, model.QueueTypeShirodhara, model.PriorityLow)
	urgent := addPatient(t, f, sess, model.QueueTypeShirodhara, model.PriorityUrgent)

	entries, err := f.svc.GetQueue(context.Background(), sess, model.QueueTypeShirodhara)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, urgent.ID, entries[0].ID)
	assert.Equal(t, 0, entries[0].Position)
	assert.Equal(t, 1, entries[1].Position)
}

func TestCallNextReturnsHighestRanked(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	addPatient(t, f, sess, model.QueueTypeAgnikarma, model.PriorityNormal)
	urgent := addPatient(t, f, sess, model.QueueTypeAgnikarma, model.PriorityUrgent)

	called, err := f.svc.CallNext(context.Background(), sess, model.QueueTypeAgnikarma)
	require.NoError(t, err)
	require.NotNil(t, called)
	assert.Equal(t, urgent.ID, called.ID)
	assert.Equal(t, model.QueueEntryStatusInProgress, called.Status)
	assert.Contains(t, f.locker.held, "queue:call:agnikarma")
}

func TestCallNextEmptyQueueIsNotAnError(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	called, err := f.svc.CallNext(context.Background(), sess, model.QueueTypePanchakarma)
	require.NoError(t, err)
	assert.Nil(t, called)
}

func TestCallNextLockContention(t *testing.T) {
	f := newFixture()
	f.locker.denied = true
	sess := session(authz.RoleFrontDesk)

	addPatient(t, f, sess, model.QueueTypeAgnikarma, model.PriorityNormal)

	_, err := f.svc.CallNext(context.Background(), sess, model.QueueTypeAgnikarma)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.From(err).Code)
}

func TestCallNextDeniedWithoutPermission(t *testing.T) {
	f := newFixture()
	sess := session(authz.RolePatient)

	_, err := f.svc.CallNext(context.Background(), sess, model.QueueTypeAgnikarma)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.From(err).Code)
}

func TestCallNextInvalidTypeFailsBeforeAuthorization(t *testing.T) {
	f := newFixture()
	sess := session(authz.RolePatient)

	_, err := f.svc.CallNext(context.Background(), sess, "cryotherapy")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.From(err).Code)
	assert.Empty(t, f.audit.entries, "invalid input is rejected before the permission gate runs")
}

func TestGetQueueInvalidTypeFailsBeforeAuthorization(t *testing.T) {
	f := newFixture()
	sess := session(authz.RolePatient)

	_, err := f.svc.GetQueue(context.Background(), sess, "cryotherapy")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.From(err).Code)
	assert.Empty(t, f.audit.entries)
}

func TestGetQueueStatsAggregates(t *testing.T) {
	f := newFixture()
	sess := session(authz.RoleFrontDesk)

	addPatient(t, f, sess, model.QueueTypeAgnikarma, model.PriorityNormal)
	addPatient(t, f, sess, model.QueueTypeAgnikarma, model.PriorityHigh)
	_, err := f.svc.CallNext(context.Background(), sess, model.QueueTypeAgnikarma)
	require.NoError(t, err)

	stats, err := f.svc.GetQueueStats(context.Background(), sess, model.QueueTypeAgnikarma)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalInQueue)
	assert.Equal(t, 1, stats.InProgress)
	assert.GreaterOrEqual(t, stats.AverageWaitTimeMinutes, float64(0))
}
