package domain

import (
	"time"

	"gorm.io/gorm"
)

const (
	HostStatusActive   = "Active"
	HostStatusReserved = "Reserved"
	HostStatusReleased = "Released"
)

// HostStatuses lists the values the update path accepts.
var HostStatuses = []string{HostStatusActive, HostStatusReserved, HostStatusReleased}

// Host is a single address at coordinate (X,Y,Z) inside a region.
// Z is confined to [1,254]; .0 and .255 stay unallocated. As with
// regions, the unique index on (user_id, x_octet, y_octet, z_octet)
// arbitrates concurrent allocation.
type Host struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   string `gorm:"size:64;not null;uniqueIndex:uq_host_coord,priority:1;index" json:"user_id"`
	RegionID uint64 `gorm:"not null;index;uniqueIndex:uq_host_name,priority:1" json:"region_id"`
	XOctet   uint8  `gorm:"not null;uniqueIndex:uq_host_coord,priority:2" json:"x_octet"`
	YOctet   uint8  `gorm:"not null;uniqueIndex:uq_host_coord,priority:3" json:"y_octet"`
	ZOctet   uint8  `gorm:"not null;uniqueIndex:uq_host_coord,priority:4" json:"z_octet"`

	Hostname string `gorm:"size:100;not null;uniqueIndex:uq_host_name,priority:2" json:"hostname"`
	Address  string `gorm:"size:15;not null" json:"address"`

	DeviceType string    `gorm:"size:40;default:''" json:"device_type"`
	OSType     string    `gorm:"size:40;default:''" json:"os_type"`
	Status     string    `gorm:"size:16;not null;default:'Active'" json:"status"`
	Tags       []string  `gorm:"serializer:json" json:"tags"`
	Notes      string    `gorm:"default:''" json:"notes"`
	Comments   []Comment `gorm:"serializer:json" json:"comments"`

	CreatedBy string    `gorm:"size:64" json:"created_by"`
	UpdatedBy string    `gorm:"size:64" json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Host) BeforeCreate(_ *gorm.DB) error {
	if h.Address == "" {
		h.Address = HostAddress(h.XOctet, h.YOctet, h.ZOctet)
	}
	if h.Status == "" {
		h.Status = HostStatusActive
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Snapshot flattens the host into the audit snapshot shape.
func (h *Host) Snapshot() map[string]any {
	return map[string]any{
		"id":          h.ID,
		"user_id":     h.UserID,
		"region_id":   h.RegionID,
		"x_octet":     h.XOctet,
		"y_octet":     h.YOctet,
		"z_octet":     h.ZOctet,
		"hostname":    h.Hostname,
		"address":     h.Address,
		"device_type": h.DeviceType,
		"os_type":     h.OSType,
		"status":      h.Status,
		"tags":        h.Tags,
		"notes":       h.Notes,
		"created_at":  h.CreatedAt,
		"updated_at":  h.UpdatedAt,
	}
}
