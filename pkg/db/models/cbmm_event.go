package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cobrehq/cbmm-accounts/pkg/enums"
)

// CBMMEvent is the persisted representation of a cross-border money movement
// instruction. The natural key is the external event id; origin and
// destination operation blocks are stored as raw JSON.
type CBMMEvent struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID         string            `gorm:"column:event_id;not null;uniqueIndex"`
	EventType       string            `gorm:"column:event_type;not null"`
	OperationDate   time.Time         `gorm:"column:operation_date;not null"`
	OriginData      json.RawMessage   `gorm:"column:origin_data;type:jsonb"`
	DestinationData json.RawMessage   `gorm:"column:destination_data;type:jsonb"`
	Status          enums.EventStatus `gorm:"column:status;not null;default:'PENDING'"`
	RetryCount      int               `gorm:"column:retry_count;not null;default:0"`
	Version         int64             `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements gorm schema.Tabler.
func (CBMMEvent) TableName() string { return "cbmm_events" }
