package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueType string

const (
	QueueTypeConsultation QueueType = "consultation"
	QueueTypeAgnikarma    QueueType = "agnikarma"
	QueueTypePanchakarma  QueueType = "panchakarma"
	QueueTypeShirodhara   QueueType = "shirodhara"
)

func (t QueueType) Valid() bool {
	switch t {
	case QueueTypeConsultation, QueueTypeAgnikarma, QueueTypePanchakarma, QueueTypeShirodhara:
		return true
	}
	return false
}

type QueueEntryStatus string

const (
	QueueEntryStatusWaiting    QueueEntryStatus = "waiting"
	QueueEntryStatusCheckedIn  QueueEntryStatus = "checked-in"
	QueueEntryStatusInProgress QueueEntryStatus = "in-progress"
	QueueEntryStatusCompleted  QueueEntryStatus = "completed"
)

// Eligible reports whether the entry can be returned by call-next.
func (s QueueEntryStatus) Eligible() bool {
	return s == QueueEntryStatusWaiting || s == QueueEntryStatusCheckedIn
}

// QueueEntry is a patient's position within one service queue. Position and
// EstimatedWaitMinutes are derived, recomputed whenever the queue changes.
type QueueEntry struct {
	Base
	PatientID            uuid.UUID        `db:"patient_id" json:"patient_id"`
	AppointmentID        *uuid.UUID       `db:"appointment_id" json:"appointment_id,omitempty"`
	QueueType            QueueType        `db:"queue_type" json:"queue_type"`
	Priority             Priority         `db:"priority" json:"priority"`
	Status               QueueEntryStatus `db:"status" json:"status"`
	EnqueuedAt           time.Time        `db:"enqueued_at" json:"enqueued_at"`
	DequeuedAt           *time.Time       `db:"dequeued_at" json:"dequeued_at,omitempty"`
	Position             int              `db:"-" json:"position"`
	EstimatedWaitMinutes int              `db:"-" json:"estimated_wait_minutes"`
	Version              int64            `db:"version" json:"version"`
}

func (e *QueueEntry) Clone() *QueueEntry {
	cp := *e
	if e.AppointmentID != nil {
		id := *e.AppointmentID
		cp.AppointmentID = &id
	}
	if e.DequeuedAt != nil {
		t := *e.DequeuedAt
		cp.DequeuedAt = &t
	}
	return &cp
}

type AddToQueueRequest struct {
	PatientID     uuid.UUID  `json:"patient_id" binding:"required"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	QueueType     QueueType  `json:"queue_type" binding:"required,oneof=consultation agnikarma panchakarma shirodhara"`
	Priority      Priority   `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

type QueueStats struct {
	TotalInQueue           int     `json:"total_in_queue"`
	AverageWaitTimeMinutes float64 `json:"average_wait_time_minutes"`
	InProgress             int     `json:"in_progress"`
	CompletedToday         int     `json:"completed_today"`
}
