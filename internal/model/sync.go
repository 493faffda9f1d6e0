package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SyncOperation string

const (
	SyncOpCreated SyncOperation = "created"
	SyncOpUpdated SyncOperation = "updated"
	SyncOpDeleted SyncOperation = "deleted"
)

// ResourceFamily names a sync subscription scope.
type ResourceFamily string

const (
	ResourceFamilyAppointments ResourceFamily = "appointments"
	ResourceFamilyQueue        ResourceFamily = "queue"
)

// SyncEvent is the canonical state-change notification. Sequence is the
// backend's per-entity version: two events for the same ResourceID must be
// applied in Sequence order, regardless of receipt order.
type SyncEvent struct {
	Resource   ResourceFamily  `json:"resource"`
	Operation  SyncOperation   `json:"operation"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Sequence   int64           `json:"sequence"`
	EmittedAt  time.Time       `json:"emitted_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ConnectionState models the sync channel lifecycle.
type ConnectionState int32

const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDegraded:
		return "degraded"
	}
	return "unknown"
}

type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentCommitted  IntentStatus = "committed"
	IntentRolledBack IntentStatus = "rolled-back"
)

// MutationIntent is one in-flight optimistic change. It exists only until
// reconciled against the gateway result or a newer canonical event.
type MutationIntent struct {
	EntityType     string
	EntityID       uuid.UUID
	PredictedState interface{}
	SubmittedAt    time.Time
	Status         IntentStatus
}
