package domain

import (
	"time"

	"gorm.io/gorm"
)

const (
	RegionStatusActive   = "Active"
	RegionStatusReserved = "Reserved"
	RegionStatusRetired  = "Retired"
)

// RegionStatuses lists the values the update path accepts.
var RegionStatuses = []string{RegionStatusActive, RegionStatusReserved, RegionStatusRetired}

// Comment is one free-form note appended to a region or host.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Region is a /24 block at coordinate (X,Y) inside a user namespace.
// The composite unique index on (user_id, x_octet, y_octet) is the sole
// race arbiter for concurrent allocation: whoever inserts first owns the
// coordinate, the loser sees a duplicate-key error and retries.
type Region struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"size:64;not null;uniqueIndex:uq_region_coord,priority:1;uniqueIndex:uq_region_name,priority:1;index" json:"user_id"`
	XOctet uint8  `gorm:"not null;uniqueIndex:uq_region_coord,priority:2" json:"x_octet"`
	YOctet uint8  `gorm:"not null;uniqueIndex:uq_region_coord,priority:3" json:"y_octet"`

	Country    string `gorm:"size:56;not null;uniqueIndex:uq_region_name,priority:2" json:"country"`
	Continent  string `gorm:"size:32;not null" json:"continent"`
	CIDR       string `gorm:"size:18;not null" json:"cidr"`
	RegionName string `gorm:"size:100;not null;uniqueIndex:uq_region_name,priority:3" json:"region_name"`

	Description string    `gorm:"default:''" json:"description"`
	Owner       string    `gorm:"size:100;default:''" json:"owner"`
	Status      string    `gorm:"size:16;not null;default:'Active'" json:"status"`
	Tags        []string  `gorm:"serializer:json" json:"tags"`
	Comments    []Comment `gorm:"serializer:json" json:"comments"`

	CreatedBy string    `gorm:"size:64" json:"created_by"`
	UpdatedBy string    `gorm:"size:64" json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Region) BeforeCreate(_ *gorm.DB) error {
	if r.CIDR == "" {
		r.CIDR = RegionCIDR(r.XOctet, r.YOctet)
	}
	if r.Status == "" {
		r.Status = RegionStatusActive
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Snapshot flattens the region into the audit snapshot shape.
func (r *Region) Snapshot() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"user_id":     r.UserID,
		"x_octet":     r.XOctet,
		"y_octet":     r.YOctet,
		"country":     r.Country,
		"continent":   r.Continent,
		"cidr":        r.CIDR,
		"region_name": r.RegionName,
		"description": r.Description,
		"owner":       r.Owner,
		"status":      r.Status,
		"tags":        r.Tags,
		"created_at":  r.CreatedAt,
		"updated_at":  r.UpdatedAt,
	}
}
