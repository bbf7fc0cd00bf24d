package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReservationStatusActive    = "active"
	ReservationStatusConverted = "converted"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusExpired   = "expired"

	// MaxReservationDays caps how far out a hold may run.
	MaxReservationDays = 90
)

// Reservation holds a coordinate without creating a named resource.
// A nil ZOctet means the hold covers the whole (X,Y) region block.
// Expiry is passive: a reservation past expires_at is treated as
// inactive wherever reservations are consulted, and a maintenance sweep
// eventually flips it to the terminal "expired" status.
type Reservation struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	UserID       string `gorm:"size:64;not null;index" json:"user_id"`
	ResourceType string `gorm:"size:16;not null" json:"resource_type"`
	XOctet       uint8  `gorm:"not null;index:idx_reservation_coord,priority:1" json:"x_octet"`
	YOctet       uint8  `gorm:"not null;index:idx_reservation_coord,priority:2" json:"y_octet"`
	ZOctet       *uint8 `gorm:"index:idx_reservation_coord,priority:3" json:"z_octet,omitempty"`

	Reason    string    `gorm:"not null" json:"reason"`
	Status    string    `gorm:"size:16;not null;default:'active';index" json:"status"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Reservation) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReservationStatusActive
	}
	return nil
}

// ActiveAt reports whether the reservation still blocks its coordinate.
func (r *Reservation) ActiveAt(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt.After(now)
}

// Snapshot flattens the reservation into the audit snapshot shape.
func (r *Reservation) Snapshot() map[string]any {
	snap := map[string]any{
		"id":            r.ID,
		"user_id":       r.UserID,
		"resource_type": r.ResourceType,
		"x_octet":       r.XOctet,
		"y_octet":       r.YOctet,
		"reason":        r.Reason,
		"status":        r.Status,
		"expires_at":    r.ExpiresAt,
		"created_at":    r.CreatedAt,
	}
	if r.ZOctet != nil {
		snap["z_octet"] = *r.ZOctet
	}
	return snap
}
