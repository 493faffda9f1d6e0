package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/backend"
	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/service/audit"
	syncchan "github.com/ayurflow/clinic-api/internal/sync"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/lock"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// Locker provides the cross-instance mutual exclusion for call-next.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// Service manages the per-therapy priority queues. The backend owns the
// atomic dequeue; this layer adds ordering, the cross-instance call-next
// lock, authorization, auditing, and broadcast.
type Service struct {
	store     backend.Store
	mirror    *cache.Mirror
	auditor   *audit.Service
	publisher *syncchan.Publisher
	locker    Locker
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(store backend.Store, mirror *cache.Mirror, auditor *audit.Service, publisher *syncchan.Publisher, locker Locker, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		mirror:    mirror,
		auditor:   auditor,
		publisher: publisher,
		locker:    locker,
		logger:    log.WithComponent("queue"),
		metrics:   m,
	}
}

func (s *Service) AddToQueue(ctx context.Context, sess *model.Session, req *model.AddToQueueRequest) (*model.QueueEntry, error) {
	if !req.QueueType.Valid() {
		return nil, apperrors.NewValidation("queue_type", "unknown queue type")
	}
	if err := s.auditor.Authorize(ctx, sess, model.PermQueueCreate, model.AuditResourceQueue, uuid.Nil); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	entry := &model.QueueEntry{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		QueueType:     req.QueueType,
		Priority:      priority,
		Status:        model.QueueEntryStatusWaiting,
		EnqueuedAt:    time.Now(),
	}

	created, err := s.store.CreateQueueEntry(ctx, entry)
	if err != nil {
		return nil, queueError(err, apperrors.CodeQueueAddFailed, "failed to add patient to queue")
	}

	s.mirror.PutEntity(model.ResourceFamilyQueue, created.ID.String(), created, created.Version)
	s.mirror.InvalidateFamily(model.ResourceFamilyQueue)
	s.auditor.Log(ctx, sess, "queue.add", model.AuditResourceQueue, created.ID, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"queue_type": created.QueueType,
			"priority":   created.Priority,
			"patient_id": created.PatientID,
		},
	})
	s.publisher.Publish(ctx, model.ResourceFamilyQueue, model.SyncOpCreated, created.ID, created.Version, created)

	// Reflect the entry's slot among what is already queued.
	if snapshot, err := s.snapshot(ctx, created.QueueType); err == nil {
		for _, e := range snapshot {
			if e.ID == created.ID {
				created.Position = e.Position
				created.EstimatedWaitMinutes = e.EstimatedWaitMinutes
			}
		}
	}
	return created, nil
}

// GetQueue returns the ordered queue with derived positions and wait
// estimates.
func (s *Service) GetQueue(ctx context.Context, sess *model.Session, queueType model.QueueType) ([]*model.QueueEntry, error) {
	if !queueType.Valid() {
		return nil, apperrors.NewValidation("queue_type", "unknown queue type")
	}
	if err := s.auditor.Authorize(ctx, sess, model.PermQueueRead, model.AuditResourceQueue, uuid.Nil); err != nil {
		return nil, err
	}

	key := "queue/" + string(queueType)
	if cached, ok := s.mirror.GetList(model.ResourceFamilyQueue, key); ok {
		if entries, ok := cached.([]*model.QueueEntry); ok {
			return entries, nil
		}
	}

	entries, err := s.snapshot(ctx, queueType)
	if err != nil {
		return nil, err
	}
	s.mirror.SetList(model.ResourceFamilyQueue, key, entries)
	s.metrics.QueueDepth.WithLabelValues(string(queueType)).Set(float64(eligibleCount(entries)))
	return entries, nil
}

// CallNext dequeues the highest-ranked eligible patient. A nil entry with a
// nil error means the queue is empty, which is a normal outcome. The redis
// lock keeps overlapping call-next requests for the same queue from racing;
// the backend dequeue itself is never auto-retried, so a timed-out call must
// be reissued deliberately by the operator.
func (s *Service) CallNext(ctx context.Context, sess *model.Session, queueType model.QueueType) (*model.QueueEntry, error) {
	if !queueType.Valid() {
		return nil, apperrors.NewValidation("queue_type", "unknown queue type")
	}
	if err := s.auditor.Authorize(ctx, sess, model.PermQueueCall, model.AuditResourceQueue, uuid.Nil); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "queue:call:"+string(queueType))
	if err != nil {
		if err == lock.ErrNotAcquired {
			return nil, apperrors.NewConflict("queue", err)
		}
		return nil, queueError(err, apperrors.CodeQueueCallFailed, "failed to acquire call-next lock")
	}
	defer release()

	start := time.Now()
	entry, err := s.store.CallNext(ctx, queueType)
	s.metrics.CallNextLatency.WithLabelValues(string(queueType)).Observe(time.Since(start).Seconds())
	if err != nil {
		if err == backend.ErrEmptyQueue {
			s.metrics.CallNextEmpty.WithLabelValues(string(queueType)).Inc()
			return nil, nil
		}
		return nil, queueError(err, apperrors.CodeQueueCallFailed, "failed to call next patient")
	}

	s.mirror.PutEntity(model.ResourceFamilyQueue, entry.ID.String(), entry, entry.Version)
	s.mirror.InvalidateFamily(model.ResourceFamilyQueue)
	s.auditor.Log(ctx, sess, "queue.call_next", model.AuditResourceQueue, entry.ID, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"queue_type": entry.QueueType,
			"patient_id": entry.PatientID,
			"priority":   entry.Priority,
		},
	})
	s.publisher.Publish(ctx, model.ResourceFamilyQueue, model.SyncOpUpdated, entry.ID, entry.Version, entry)
	return entry, nil
}

// GetQueueStats aggregates live and historical counters. An empty queueType
// aggregates across all queues.
func (s *Service) GetQueueStats(ctx context.Context, sess *model.Session, queueType model.QueueType) (*model.QueueStats, error) {
	if queueType != "" && !queueType.Valid() {
		return nil, apperrors.NewValidation("queue_type", "unknown queue type")
	}
	if err := s.auditor.Authorize(ctx, sess, model.PermQueueRead, model.AuditResourceQueue, uuid.Nil); err != nil {
		return nil, err
	}

	key := "stats/" + string(queueType)
	if cached, ok := s.mirror.GetList(model.ResourceFamilyQueue, key); ok {
		if stats, ok := cached.(*model.QueueStats); ok {
			return stats, nil
		}
	}

	types := []model.QueueType{queueType}
	if queueType == "" {
		types = allQueueTypes()
	}

	stats := &model.QueueStats{}
	for _, t := range types {
		entries, err := s.store.ListQueue(ctx, t)
		if err != nil {
			return nil, queueError(err, apperrors.CodeQueueStatsFailed, "failed to read queue")
		}
		for _, e := range entries {
			switch {
			case e.Status.Eligible():
				stats.TotalInQueue++
			case e.Status == model.QueueEntryStatusInProgress:
				stats.InProgress++
			}
		}
	}

	midnight := startOfDay(time.Now())
	history, err := s.store.ListQueueHistory(ctx, midnight)
	if err != nil {
		return nil, queueError(err, apperrors.CodeQueueStatsFailed, "failed to read queue history")
	}

	var waited float64
	var samples int
	for _, e := range history {
		if queueType != "" && e.QueueType != queueType {
			continue
		}
		if e.Status == model.QueueEntryStatusCompleted && e.DequeuedAt != nil && !e.DequeuedAt.Before(midnight) {
			stats.CompletedToday++
		}
		if e.DequeuedAt != nil {
			waited += e.DequeuedAt.Sub(e.EnqueuedAt).Minutes()
			samples++
		}
	}
	if samples > 0 {
		stats.AverageWaitTimeMinutes = waited / float64(samples)
	}

	s.mirror.SetList(model.ResourceFamilyQueue, key, stats)
	return stats, nil
}

// Resync refreshes every queue's canonical entries after a sync reconnect.
func (s *Service) Resync(ctx context.Context, family model.ResourceFamily) error {
	seen := make(map[string]struct{})
	for _, t := range allQueueTypes() {
		entries, err := s.store.ListQueue(ctx, t)
		if err != nil {
			return err
		}
		for _, e := range entries {
			id := e.ID.String()
			seen[id] = struct{}{}
			s.mirror.ForcePutEntity(family, id, e, e.Version)
		}
	}
	// Entries that vanished from every queue are gone from canonical state.
	for _, id := range s.mirror.EntityIDs(family) {
		if _, ok := seen[id]; !ok {
			s.mirror.DeleteEntity(family, id)
		}
	}
	s.mirror.InvalidateFamily(family)
	return nil
}

func (s *Service) snapshot(ctx context.Context, queueType model.QueueType) ([]*model.QueueEntry, error) {
	entries, err := s.store.ListQueue(ctx, queueType)
	if err != nil {
		return nil, queueError(err, apperrors.CodeQueueFetchFailed, "failed to fetch queue")
	}
	for _, e := range entries {
		s.mirror.PutEntity(model.ResourceFamilyQueue, e.ID.String(), e, e.Version)
	}
	order(queueType, entries, 0)
	return entries, nil
}

func eligibleCount(entries []*model.QueueEntry) int {
	n := 0
	for _, e := range entries {
		if e.Status.Eligible() {
			n++
		}
	}
	return n
}

func allQueueTypes() []model.QueueType {
	return []model.QueueType{
		model.QueueTypeConsultation,
		model.QueueTypeAgnikarma,
		model.QueueTypePanchakarma,
		model.QueueTypeShirodhara,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func queueError(err error, code apperrors.Code, msg string) error {
	appErr := apperrors.From(err)
	switch appErr.Kind {
	case apperrors.KindValidation, apperrors.KindAuth, apperrors.KindConflict, apperrors.KindNotFound:
		return appErr
	default:
		return apperrors.NewOperation(code, msg, err)
	}
}
