package model

import (
	"github.com/google/uuid"
)

// Session is the caller context resolved once per request from the bearer
// token: identity, clinic scope, and the capability set derived from role.
type Session struct {
	UserID      uuid.UUID
	ClinicID    uuid.UUID
	Role        string
	IPAddress   string
	UserAgent   string
	Permissions map[Permission]struct{}
}

// Permission names follow resource.action.
type Permission string

const (
	PermAppointmentsCreate     Permission = "appointments.create"
	PermAppointmentsRead       Permission = "appointments.read"
	PermAppointmentsUpdate     Permission = "appointments.update"
	PermAppointmentsCancel     Permission = "appointments.cancel"
	PermAppointmentsTransition Permission = "appointments.transition"
	PermQueueRead              Permission = "queue.read"
	PermQueueCreate            Permission = "queue.create"
	PermQueueCall              Permission = "queue.call"
	PermAuditRead              Permission = "audit.read"
)

// Has reports whether the session carries the permission.
func (s *Session) Has(p Permission) bool {
	if s == nil {
		return false
	}
	_, ok := s.Permissions[p]
	return ok
}
