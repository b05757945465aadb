package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// AuditStatusFromCode classifies an HTTP status code: <400 success,
// 400-499 failure, >=500 error.
func AuditStatusFromCode(code int) AuditStatus {
	switch {
	case code >= 500:
		return AuditStatusError
	case code >= 400:
		return AuditStatusFailure
	default:
		return AuditStatusSuccess
	}
}

func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusSuccess, AuditStatusFailure, AuditStatusError:
		return true
	}
	return false
}

// AuditEntry is append-only. ID is a ULID so entries sort by creation time.
type AuditEntry struct {
	ID               string         `json:"id" gorm:"type:char(26);primary_key"`
	ActorID          *uuid.UUID     `json:"actorId" gorm:"type:uuid;index:idx_audit_actor_created"`
	ActorEmail       *string        `json:"actorEmail"`
	Action           string         `json:"action" gorm:"index;not null"`
	Resource         string         `json:"resource" gorm:"index;not null"`
	ResourceID       *string        `json:"resourceId"`
	Method           string         `json:"method" gorm:"not null"`
	Path             string         `json:"path" gorm:"not null"`
	IP               *string        `json:"ip"`
	UserAgent        *string        `json:"userAgent"`
	Status           AuditStatus    `json:"status" gorm:"index;not null"`
	StatusCode       int            `json:"statusCode" gorm:"not null"`
	Details          datatypes.JSON `json:"details" gorm:"type:jsonb"`
	RequestSnapshot  datatypes.JSON `json:"requestSnapshot,omitempty" gorm:"type:jsonb"`
	ResponseSnapshot datatypes.JSON `json:"responseSnapshot,omitempty" gorm:"type:jsonb"`
	DurationMs       int64          `json:"durationMs"`
	CreatedAt        time.Time      `json:"createdAt" gorm:"index:idx_audit_actor_created;not null"`
}

type AuditFilter struct {
	ActorID  *uuid.UUID
	Action   string
	Resource string
	Status   AuditStatus
}

type AuditStats struct {
	TotalLogs    int64 `json:"totalLogs"`
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`
	ErrorCount   int64 `json:"errorCount"`
}
