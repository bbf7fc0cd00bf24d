package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreate             = "create"
	ActionUpdate             = "update"
	ActionRelease            = "release"
	ActionRetire             = "retire"
	ActionReserve            = "reserve"
	ActionConvertReservation = "convert_reservation"
)

// Resource type labels used on audit events and reservations.
const (
	ResourceRegion      = "region"
	ResourceHost        = "host"
	ResourceReservation = "reservation"
)

// FieldChange records one field-level diff inside an update event.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditEvent is the append-only record of a single state-changing call.
// It carries a full snapshot of the resource at the time of the action,
// so history survives the hard delete of the live row. Events are never
// updated or deleted.
type AuditEvent struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	ActionType   string `gorm:"size:24;not null;index" json:"action_type"`
	ResourceType string `gorm:"size:16;not null;index" json:"resource_type"`
	ResourceID   string `gorm:"size:36;not null;index" json:"resource_id"`

	UserID    string `gorm:"size:64;not null;index" json:"user_id"`
	ActorName string `gorm:"size:100;default:''" json:"actor_name"`
	Reason    string `gorm:"default:''" json:"reason"`

	Snapshot map[string]any `gorm:"serializer:json" json:"snapshot"`
	Changes  []FieldChange  `gorm:"serializer:json" json:"changes"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *AuditEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
