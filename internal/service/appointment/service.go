package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/backend"
	"github.com/ayurflow/clinic-api/internal/cache"
	"github.com/ayurflow/clinic-api/internal/coordinator"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/service/audit"
	syncchan "github.com/ayurflow/clinic-api/internal/sync"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/logger"
)

// Service is the server action gateway for appointments: every mutation is
// validated, authorized, executed against the backend through the optimistic
// coordinator, audited, and broadcast. Reads pass the permission check but
// skip the success audit.
type Service struct {
	store     backend.Store
	coord     *coordinator.Coordinator
	mirror    *cache.Mirror
	auditor   *audit.Service
	publisher *syncchan.Publisher
	logger    *logger.Logger
}

func NewService(store backend.Store, coord *coordinator.Coordinator, mirror *cache.Mirror, auditor *audit.Service, publisher *syncchan.Publisher, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		coord:     coord,
		mirror:    mirror,
		auditor:   auditor,
		publisher: publisher,
		logger:    log.WithComponent("appointments"),
	}
}

var opFailureCodes = map[Operation]apperrors.Code{
	OpConfirm:  apperrors.CodeAppointmentConfirmFail,
	OpCheckIn:  apperrors.CodeAppointmentCheckinFail,
	OpStart:    apperrors.CodeAppointmentStartFailed,
	OpComplete: apperrors.CodeAppointmentCompleteFail,
	OpCancel:   apperrors.CodeAppointmentCancelFailed,
	OpNoShow:   apperrors.CodeAppointmentUpdateFailed,
}

func (s *Service) Create(ctx context.Context, sess *model.Session, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsCreate, model.AuditResourceAppointment, uuid.Nil); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	apt := &model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		LocationID:      req.LocationID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Status:          model.AppointmentStatusScheduled,
		Priority:        priority,
		Notes:           req.Notes,
	}

	created, err := s.store.CreateAppointment(ctx, apt)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentCreateFailed, "failed to create appointment")
	}

	s.mirror.PutEntity(model.ResourceFamilyAppointments, created.ID.String(), created, created.Version)
	s.mirror.InvalidateFamily(model.ResourceFamilyAppointments)
	s.auditor.Log(ctx, sess, "appointments.create", model.AuditResourceAppointment, created.ID, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"status":   created.Status,
			"type":     created.Type,
			"priority": created.Priority,
			"date":     created.Date,
		},
	})
	s.publisher.Publish(ctx, model.ResourceFamilyAppointments, model.SyncOpCreated, created.ID, created.Version, created)
	return created, nil
}

func (s *Service) Get(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsRead, model.AuditResourceAppointment, id); err != nil {
		return nil, err
	}
	return s.fetch(ctx, id)
}

func (s *Service) List(ctx context.Context, sess *model.Session, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsRead, model.AuditResourceAppointment, uuid.Nil); err != nil {
		return nil, 0, err
	}

	key := listCacheKey(filters)
	if cached, ok := s.mirror.GetList(model.ResourceFamilyAppointments, key); ok {
		if res, ok := cached.(*listResult); ok {
			return res.appointments, res.total, nil
		}
	}

	appointments, total, err := s.store.ListAppointments(ctx, filters)
	if err != nil {
		return nil, 0, opError(err, apperrors.CodeAppointmentFetchFailed, "failed to list appointments")
	}
	s.mirror.SetList(model.ResourceFamilyAppointments, key, &listResult{appointments: appointments, total: total})
	return appointments, total, nil
}

func (s *Service) GetDoctorAvailability(ctx context.Context, sess *model.Session, doctorID uuid.UUID, date string) (*model.DoctorAvailability, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsRead, model.AuditResourceAppointment, doctorID); err != nil {
		return nil, err
	}

	key := "availability/" + doctorID.String() + "/" + date
	if cached, ok := s.mirror.GetList(model.ResourceFamilyAppointments, key); ok {
		if av, ok := cached.(*model.DoctorAvailability); ok {
			return av, nil
		}
	}

	availability, err := s.store.GetDoctorAvailability(ctx, doctorID, date)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentFetchFailed, "failed to fetch availability")
	}
	s.mirror.SetList(model.ResourceFamilyAppointments, key, availability)
	return availability, nil
}

// Update applies a restricted field patch. A status in the patch must be a
// target reachable from the current status; everything else is a plain merge.
func (s *Service) Update(ctx context.Context, sess *model.Session, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsUpdate, model.AuditResourceAppointment, id); err != nil {
		return nil, err
	}

	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, apperrors.NewStateTransition(string(current.Status), "update")
	}

	patch := map[string]interface{}{}
	predicted := current.Clone()
	var changed []string

	if req.Date != nil {
		patch["date"] = *req.Date
		predicted.Date = *req.Date
		changed = append(changed, "date")
	}
	if req.Time != nil {
		patch["time"] = *req.Time
		predicted.Time = *req.Time
		changed = append(changed, "time")
	}
	if req.DurationMinutes != nil {
		patch["duration_minutes"] = *req.DurationMinutes
		predicted.DurationMinutes = *req.DurationMinutes
		changed = append(changed, "duration_minutes")
	}
	if req.Priority != nil {
		patch["priority"] = *req.Priority
		predicted.Priority = *req.Priority
		changed = append(changed, "priority")
	}
	if req.Notes != nil {
		patch["notes"] = *req.Notes
		predicted.Notes = *req.Notes
		changed = append(changed, "notes")
	}
	if req.Status != nil {
		if !CanTransition(current.Status, *req.Status) {
			s.auditFailure(ctx, sess, "appointments.update", id, current.Status, *req.Status)
			return nil, apperrors.NewStateTransition(string(current.Status), string(*req.Status))
		}
		patch["status"] = *req.Status
		predicted.Status = *req.Status
		changed = append(changed, "status")
	}
	if len(patch) == 0 {
		return current, nil
	}

	updated, err := s.mutate(ctx, id, predicted, patch, current.Version)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentUpdateFailed, "failed to update appointment")
	}

	s.auditor.Log(ctx, sess, "appointments.update", model.AuditResourceAppointment, id, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"changed_fields": changed,
			"prior_status":   current.Status,
			"next_status":    updated.Status,
		},
	})
	s.finish(ctx, updated)
	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, sess, id, OpConfirm, nil)
}

func (s *Service) CheckIn(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, sess, id, OpCheckIn, nil)
}

func (s *Service) Start(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, sess, id, OpStart, nil)
}

func (s *Service) MarkNoShow(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, sess, id, OpNoShow, nil)
}

func (s *Service) Complete(ctx context.Context, sess *model.Session, id uuid.UUID, req *model.CompleteAppointmentRequest) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsTransition, model.AuditResourceAppointment, id); err != nil {
		return nil, err
	}

	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	predicted, err := applyComplete(current, req)
	if err != nil {
		s.auditFailure(ctx, sess, "appointments.complete", id, current.Status, model.AppointmentStatusCompleted)
		return nil, err
	}

	patch := map[string]interface{}{
		"status":          predicted.Status,
		"diagnosis":       predicted.Diagnosis,
		"prescription":    predicted.Prescription,
		"notes":           predicted.Notes,
		"follow_up_notes": predicted.FollowUpNotes,
	}
	if predicted.FollowUpDate != nil {
		patch["follow_up_date"] = *predicted.FollowUpDate
	}

	updated, err := s.mutate(ctx, id, predicted, patch, current.Version)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentCompleteFail, "failed to complete appointment")
	}

	s.auditor.Log(ctx, sess, "appointments.complete", model.AuditResourceAppointment, id, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"prior_status":  current.Status,
			"next_status":   updated.Status,
			"has_diagnosis": req.Diagnosis != "",
			"has_follow_up": req.FollowUpDate != nil,
		},
	})
	s.finish(ctx, updated)
	return updated, nil
}

// Cancel is terminal. The reason is audit metadata only; it never lands on
// the entity.
func (s *Service) Cancel(ctx context.Context, sess *model.Session, id uuid.UUID, reason string) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsCancel, model.AuditResourceAppointment, id); err != nil {
		return nil, err
	}

	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	predicted, err := applyTransition(current, OpCancel)
	if err != nil {
		s.auditFailure(ctx, sess, "appointments.cancel", id, current.Status, model.AppointmentStatusCancelled)
		return nil, err
	}

	updated, err := s.mutate(ctx, id, predicted, map[string]interface{}{"status": predicted.Status}, current.Version)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentCancelFailed, "failed to cancel appointment")
	}

	s.auditor.Log(ctx, sess, "appointments.cancel", model.AuditResourceAppointment, id, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"prior_status": current.Status,
			"next_status":  updated.Status,
			"reason":       reason,
		},
	})
	s.finish(ctx, updated)
	return updated, nil
}

func (s *Service) transition(ctx context.Context, sess *model.Session, id uuid.UUID, op Operation, extra map[string]interface{}) (*model.Appointment, error) {
	if err := s.auditor.Authorize(ctx, sess, model.PermAppointmentsTransition, model.AuditResourceAppointment, id); err != nil {
		return nil, err
	}

	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	predicted, err := applyTransition(current, op)
	if err != nil {
		s.auditFailure(ctx, sess, "appointments."+string(op), id, current.Status, "")
		return nil, err
	}

	patch := map[string]interface{}{"status": predicted.Status}
	for k, v := range extra {
		patch[k] = v
	}

	updated, err := s.mutate(ctx, id, predicted, patch, current.Version)
	if err != nil {
		return nil, opError(err, opFailureCodes[op], fmt.Sprintf("failed to %s appointment", op))
	}

	s.auditor.Log(ctx, sess, "appointments."+string(op), model.AuditResourceAppointment, id, model.AuditResultSuccess, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"prior_status": current.Status,
			"next_status":  updated.Status,
		},
	})
	s.finish(ctx, updated)
	return updated, nil
}

// mutate runs the backend write through the coordinator so the predicted
// state is visible immediately and rolled back on failure.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, predicted *model.Appointment, patch map[string]interface{}, fromVersion int64) (*model.Appointment, error) {
	result, err := s.coord.Execute(ctx, model.ResourceFamilyAppointments, id, predicted, func(ctx context.Context) (interface{}, int64, error) {
		updated, err := s.store.UpdateAppointment(ctx, id, patch, fromVersion)
		if err != nil {
			return nil, 0, err
		}
		return updated, updated.Version, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Appointment), nil
}

func (s *Service) finish(ctx context.Context, updated *model.Appointment) {
	s.mirror.InvalidateFamily(model.ResourceFamilyAppointments)
	s.publisher.Publish(ctx, model.ResourceFamilyAppointments, model.SyncOpUpdated, updated.ID, updated.Version, updated)
}

func (s *Service) fetch(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	if cached, _, ok := s.mirror.GetEntity(model.ResourceFamilyAppointments, id.String()); ok {
		if apt, ok := cached.(*model.Appointment); ok {
			return apt, nil
		}
	}
	apt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, opError(err, apperrors.CodeAppointmentNotFound, "failed to fetch appointment")
	}
	s.mirror.PutEntity(model.ResourceFamilyAppointments, id.String(), apt, apt.Version)
	return apt, nil
}

// Resync refetches canonical appointment state after a sync reconnect. Only
// entities already mirrored are refreshed; anything else loads on demand.
func (s *Service) Resync(ctx context.Context, family model.ResourceFamily) error {
	for _, id := range s.mirror.EntityIDs(family) {
		aptID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		apt, err := s.store.GetAppointment(ctx, aptID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				s.mirror.DeleteEntity(family, id)
				continue
			}
			return err
		}
		s.mirror.ForcePutEntity(family, id, apt, apt.Version)
	}
	s.mirror.InvalidateFamily(family)
	return nil
}

func (s *Service) auditFailure(ctx context.Context, sess *model.Session, action string, id uuid.UUID, from, to model.AppointmentStatus) {
	meta := map[string]interface{}{
		"reason":       "invalid status transition",
		"prior_status": from,
	}
	if to != "" {
		meta["requested_status"] = to
	}
	s.auditor.Log(ctx, sess, action, model.AuditResourceAppointment, id, model.AuditResultFailure, &audit.LogOptions{
		Metadata: meta,
	})
}

type listResult struct {
	appointments []*model.Appointment
	total        int
}

func listCacheKey(f *model.AppointmentFilters) string {
	key := "list"
	if f.PatientID != nil {
		key += "/p:" + f.PatientID.String()
	}
	if f.DoctorID != nil {
		key += "/d:" + f.DoctorID.String()
	}
	if f.Status != "" {
		key += "/s:" + string(f.Status)
	}
	if f.DateFrom != "" || f.DateTo != "" {
		key += "/r:" + f.DateFrom + ".." + f.DateTo
	}
	if f.Page > 0 {
		key += fmt.Sprintf("/pg:%d,%d", f.Page, f.PageSize)
	}
	return key
}

func opError(err error, code apperrors.Code, msg string) error {
	appErr := apperrors.From(err)
	switch appErr.Kind {
	case apperrors.KindNotFound:
		return apperrors.NewNotFound(apperrors.CodeAppointmentNotFound, "appointment")
	case apperrors.KindValidation, apperrors.KindAuth, apperrors.KindStateTransition, apperrors.KindConflict:
		return appErr
	default:
		return apperrors.NewOperation(code, msg, err)
	}
}
