package authz

import (
	"github.com/ayurflow/clinic-api/internal/model"
)

// Role names supplied by the identity provider.
const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleTherapist = "therapist"
	RoleFrontDesk = "front_desk"
	RolePatient   = "patient"
)

// rolePermissions is the single source of truth for capability resolution;
// both the gate and any presentation logic consult the same sets.
var rolePermissions = map[string][]model.Permission{
	RoleAdmin: {
		model.PermAppointmentsCreate, model.PermAppointmentsRead,
		model.PermAppointmentsUpdate, model.PermAppointmentsCancel,
		model.PermAppointmentsTransition,
		model.PermQueueRead, model.PermQueueCreate, model.PermQueueCall,
		model.PermAuditRead,
	},
	RoleDoctor: {
		model.PermAppointmentsRead, model.PermAppointmentsUpdate,
		model.PermAppointmentsTransition,
		model.PermQueueRead, model.PermQueueCall,
	},
	RoleTherapist: {
		model.PermAppointmentsRead, model.PermAppointmentsTransition,
		model.PermQueueRead, model.PermQueueCall,
	},
	RoleFrontDesk: {
		model.PermAppointmentsCreate, model.PermAppointmentsRead,
		model.PermAppointmentsUpdate, model.PermAppointmentsCancel,
		model.PermAppointmentsTransition,
		model.PermQueueRead, model.PermQueueCreate, model.PermQueueCall,
	},
	RolePatient: {
		model.PermAppointmentsCreate, model.PermAppointmentsRead,
		model.PermAppointmentsCancel,
	},
}

// Resolve builds the capability set for a role, resolved once per session.
func Resolve(role string) map[model.Permission]struct{} {
	perms := make(map[model.Permission]struct{})
	for _, p := range rolePermissions[role] {
		perms[p] = struct{}{}
	}
	return perms
}
