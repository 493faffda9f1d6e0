package appointment

import (
	"github.com/ayurflow/clinic-api/internal/model"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
)

// Operation names a lifecycle transition.
type Operation string

const (
	OpConfirm  Operation = "confirm"
	OpCheckIn  Operation = "check_in"
	OpStart    Operation = "start"
	OpComplete Operation = "complete"
	OpCancel   Operation = "cancel"
	OpNoShow   Operation = "mark_no_show"
)

// transitions maps each operation to its valid source statuses and target.
// cancel and mark_no_show accept any non-terminal source, expressed with a
// nil source set.
var transitions = map[Operation]struct {
	sources map[model.AppointmentStatus]struct{}
	target  model.AppointmentStatus
}{
	OpConfirm: {
		sources: sourceSet(model.AppointmentStatusScheduled),
		target:  model.AppointmentStatusConfirmed,
	},
	OpCheckIn: {
		sources: sourceSet(model.AppointmentStatusConfirmed),
		target:  model.AppointmentStatusCheckedIn,
	},
	OpStart: {
		sources: sourceSet(model.AppointmentStatusCheckedIn),
		target:  model.AppointmentStatusInProgress,
	},
	OpComplete: {
		sources: sourceSet(model.AppointmentStatusInProgress),
		target:  model.AppointmentStatusCompleted,
	},
	OpCancel: {
		target: model.AppointmentStatusCancelled,
	},
	OpNoShow: {
		target: model.AppointmentStatusNoShow,
	},
}

func sourceSet(statuses ...model.AppointmentStatus) map[model.AppointmentStatus]struct{} {
	set := make(map[model.AppointmentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// NextStatus is the guard half of guard-then-apply: it returns the target
// status for op, or a StateTransitionError when current is not a valid
// source. It never mutates anything.
func NextStatus(current model.AppointmentStatus, op Operation) (model.AppointmentStatus, error) {
	t, ok := transitions[op]
	if !ok {
		return "", apperrors.NewStateTransition(string(current), string(op))
	}
	if t.sources == nil {
		if current.Terminal() {
			return "", apperrors.NewStateTransition(string(current), string(t.target))
		}
		return t.target, nil
	}
	if _, ok := t.sources[current]; !ok {
		return "", apperrors.NewStateTransition(string(current), string(t.target))
	}
	return t.target, nil
}

// CanTransition reports whether target is reachable from current through any
// single operation. Used to vet an explicit status in an update patch.
func CanTransition(current, target model.AppointmentStatus) bool {
	for op := range transitions {
		next, err := NextStatus(current, op)
		if err == nil && next == target {
			return true
		}
	}
	return false
}

// applyTransition produces the next entity state for op without touching the
// input. Operation-specific payload merges happen in the callers that hold
// the request data; this applies only the status change.
func applyTransition(apt *model.Appointment, op Operation) (*model.Appointment, error) {
	next, err := NextStatus(apt.Status, op)
	if err != nil {
		return nil, err
	}
	out := apt.Clone()
	out.Status = next
	return out, nil
}

// applyComplete merges the completion payload onto the transition. The
// appointment becomes immutable history afterwards, so everything the visit
// produced lands here.
func applyComplete(apt *model.Appointment, req *model.CompleteAppointmentRequest) (*model.Appointment, error) {
	out, err := applyTransition(apt, OpComplete)
	if err != nil {
		return nil, err
	}
	if req.Diagnosis != "" {
		out.Diagnosis = req.Diagnosis
	}
	if req.Prescription != "" {
		out.Prescription = req.Prescription
	}
	if req.Notes != "" {
		out.Notes = req.Notes
	}
	if req.FollowUpDate != nil {
		out.FollowUpDate = req.FollowUpDate
	}
	if req.FollowUpNotes != "" {
		out.FollowUpNotes = req.FollowUpNotes
	}
	return out, nil
}
