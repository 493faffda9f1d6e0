package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "SUCCESS"
	AuditResultFailure AuditResult = "FAILURE"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// AuditLog is append-only: rows are written once and never mutated by this
// subsystem. Metadata holds changed fields and prior/next status, never full
// clinical payloads.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	ClinicID   uuid.UUID       `json:"clinic_id" db:"clinic_id"`
	Action     string          `json:"action" db:"action"`
	Resource   string          `json:"resource" db:"resource"`
	ResourceID uuid.UUID       `json:"resource_id" db:"resource_id"`
	Result     AuditResult     `json:"result" db:"result"`
	RiskLevel  RiskLevel       `json:"risk_level" db:"risk_level"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	Metadata   json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	AuditResourceAppointment = "appointment"
	AuditResourceQueue       = "queue"
)

type AuditAggregate struct {
	TotalEntries  int64          `json:"total_entries"`
	ActionCounts  map[string]int `json:"action_counts"`
	FailureCounts map[string]int `json:"failure_counts"`
	UserActivity  map[string]int `json:"user_activity"`
}
