package model

import (
	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentStatusConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentStatusCheckedIn  AppointmentStatus = "CHECKED_IN"
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow     AppointmentStatus = "NO_SHOW"
)

// Terminal reports whether the status admits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeConsultation AppointmentType = "consultation"
	AppointmentTypeFollowUp     AppointmentType = "follow-up"
	AppointmentTypeEmergency    AppointmentType = "emergency"
	AppointmentTypeRoutine      AppointmentType = "routine"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities for queue sorting; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Appointment is the canonical entity owned by the backend. Version is the
// backend's monotonic per-row counter; it doubles as the event sequence
// number on the sync channel.
type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	LocationID      uuid.UUID         `db:"location_id" json:"location_id"`
	Date            string            `db:"date" json:"date"`
	Time            string            `db:"time" json:"time"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Type            AppointmentType   `db:"type" json:"type"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Priority        Priority          `db:"priority" json:"priority"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	Diagnosis       string            `db:"diagnosis" json:"diagnosis,omitempty"`
	Prescription    string            `db:"prescription" json:"prescription,omitempty"`
	FollowUpDate    *string           `db:"follow_up_date" json:"follow_up_date,omitempty"`
	FollowUpNotes   string            `db:"follow_up_notes" json:"follow_up_notes,omitempty"`
	Version         int64             `db:"version" json:"version"`
	Timestamps
}

// Clone returns a deep-enough copy for snapshot/rollback purposes.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.FollowUpDate != nil {
		d := *a.FollowUpDate
		cp.FollowUpDate = &d
	}
	return &cp
}

type CreateAppointmentRequest struct {
	PatientID       uuid.UUID       `json:"patient_id" binding:"required"`
	DoctorID        uuid.UUID       `json:"doctor_id" binding:"required"`
	LocationID      uuid.UUID       `json:"location_id" binding:"required"`
	Date            string          `json:"date" binding:"required,datetime=2006-01-02"`
	Time            string          `json:"time" binding:"required,datetime=15:04"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=15,max=480"`
	Type            AppointmentType `json:"type" binding:"required,oneof=consultation follow-up emergency routine"`
	Priority        Priority        `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Notes           string          `json:"notes" binding:"max=1000"`
}

// UpdateAppointmentRequest is a restricted field patch. A Status value must
// be a legal transition target from the appointment's current status.
type UpdateAppointmentRequest struct {
	Date            *string            `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Time            *string            `json:"time" binding:"omitempty,datetime=15:04"`
	DurationMinutes *int               `json:"duration_minutes" binding:"omitempty,min=15,max=480"`
	Status          *AppointmentStatus `json:"status"`
	Priority        *Priority          `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Notes           *string            `json:"notes" binding:"omitempty,max=1000"`
}

type CompleteAppointmentRequest struct {
	Diagnosis     string  `json:"diagnosis" binding:"max=2000"`
	Prescription  string  `json:"prescription" binding:"max=2000"`
	Notes         string  `json:"notes" binding:"max=1000"`
	FollowUpDate  *string `json:"follow_up_date" binding:"omitempty,datetime=2006-01-02"`
	FollowUpNotes string  `json:"follow_up_notes" binding:"max=1000"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AppointmentFilters struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	DateFrom  string
	DateTo    string
	Page      int
	PageSize  int
}

type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DoctorAvailability struct {
	DoctorID uuid.UUID  `json:"doctor_id"`
	Date     string     `json:"date"`
	Slots    []TimeSlot `json:"slots"`
}
