// Package reservation manages time-boxed holds on coordinates that are
// not yet named resources. A hold blocks allocation of its coordinate
// until it is converted, cancelled or expires. Expiry is passive:
// validation and conversion treat a past expires_at as inactive, and a
// background sweep flips such rows to a terminal status for hygiene.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"
	"ipatlas/internal/index"
	"ipatlas/internal/quota"
	"ipatlas/internal/refmap"

	"gorm.io/gorm"
)

type Manager struct {
	db     *gorm.DB
	refMap *refmap.Map
	ledger *quota.Ledger
	index  *index.Index
	audit  *audit.Recorder
}

func NewManager(db *gorm.DB, refMap *refmap.Map, ledger *quota.Ledger, idx *index.Index, recorder *audit.Recorder) *Manager {
	return &Manager{db: db, refMap: refMap, ledger: ledger, index: idx, audit: recorder}
}

type CreateRequest struct {
	UserID       string
	ResourceType string
	XOctet       uint8
	YOctet       uint8
	ZOctet       *uint8
	Reason       string
	ExpiresIn    int // days; 0 means the configured default
}

// Validate checks that nothing holds the coordinate: no active
// region/host and no other active reservation.
func (m *Manager) Validate(ctx context.Context, userID string, x, y uint8, z *uint8) error {
	if z == nil {
		var count int64
		err := m.db.WithContext(ctx).Model(&domain.Region{}).
			Where("user_id = ? AND x_octet = ? AND y_octet = ?", userID, x, y).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("reservation: check region at (%d,%d): %w", x, y, err)
		}
		if count > 0 {
			return faults.DuplicateAllocation(
				fmt.Sprintf("block %s is already allocated", domain.RegionCIDR(x, y)),
				map[string]any{"x": x, "y": y})
		}
	} else {
		if *z < domain.MinZOctet || *z > domain.MaxZOctet {
			return faults.Validation(fmt.Sprintf("z octet must be in [%d,%d]", domain.MinZOctet, domain.MaxZOctet))
		}

		var count int64
		err := m.db.WithContext(ctx).Model(&domain.Host{}).
			Where("user_id = ? AND x_octet = ? AND y_octet = ? AND z_octet = ?", userID, x, y, *z).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("reservation: check host at (%d,%d,%d): %w", x, y, *z, err)
		}
		if count > 0 {
			return faults.DuplicateAllocation(
				fmt.Sprintf("address %s is already allocated", domain.HostAddress(x, y, *z)),
				map[string]any{"x": x, "y": y, "z": *z})
		}
	}

	held, err := m.index.ReservedAt(ctx, userID, x, y, z, "")
	if err != nil {
		return err
	}
	if held {
		return faults.DuplicateAllocation("coordinate is held by another reservation",
			map[string]any{"x": x, "y": y})
	}
	return nil
}

// Create places a hold on a coordinate for at most MaxReservationDays.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	switch req.ResourceType {
	case domain.ResourceRegion:
		if req.ZOctet != nil {
			return nil, faults.Validation("a region reservation must not carry a z octet")
		}
	case domain.ResourceHost:
		if req.ZOctet == nil {
			return nil, faults.Validation("a host reservation requires a z octet")
		}
	default:
		return nil, faults.Validation(fmt.Sprintf("unknown resource type %q", req.ResourceType))
	}

	if err := requireReason(req.Reason); err != nil {
		return nil, err
	}

	days := req.ExpiresIn
	if days == 0 {
		days = config.GetConfig().Reservation.DefaultDays
	}
	if days < 1 || days > domain.MaxReservationDays {
		return nil, faults.Validation(fmt.Sprintf("expiry must be between 1 and %d days", domain.MaxReservationDays))
	}

	// The X octet must belong to a mapped country.
	if _, err := m.refMap.LookupByX(ctx, req.XOctet); err != nil {
		return nil, err
	}

	if err := m.Validate(ctx, req.UserID, req.XOctet, req.YOctet, req.ZOctet); err != nil {
		return nil, err
	}

	reservation := domain.Reservation{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		XOctet:       req.XOctet,
		YOctet:       req.YOctet,
		ZOctet:       req.ZOctet,
		Reason:       req.Reason,
		Status:       domain.ReservationStatusActive,
		ExpiresAt:    time.Now().UTC().AddDate(0, 0, days),
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reservation).Error; err != nil {
			return fmt.Errorf("reservation: create: %w", err)
		}
		return m.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionReserve,
			ResourceType: domain.ResourceReservation,
			ResourceID:   reservation.ID,
			UserID:       req.UserID,
			Reason:       req.Reason,
			Snapshot:     reservation.Snapshot(),
		})
	})
	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

// Delete cancels a reservation outright. No quota is involved; the
// hold is removed and a release event keeps the audit trail complete.
func (m *Manager) Delete(ctx context.Context, userID, reservationID string) error {
	reservation, err := m.load(ctx, userID, reservationID)
	if err != nil {
		return err
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Reservation{}, "id = ?", reservation.ID).Error; err != nil {
			return fmt.Errorf("reservation: delete %s: %w", reservation.ID, err)
		}
		return m.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionRelease,
			ResourceType: domain.ResourceReservation,
			ResourceID:   reservation.ID,
			UserID:       userID,
			Snapshot:     reservation.Snapshot(),
		})
	})
}

// SweepExpired flips active-but-expired reservations to the terminal
// "expired" status. Correctness does not depend on this running; every
// read path already treats an expired hold as inactive.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("status = ? AND expires_at <= ?", domain.ReservationStatusActive, time.Now()).
		Update("status", domain.ReservationStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("reservation: sweep expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (m *Manager) load(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := m.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", reservationID, userID).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceReservation, reservationID)
		}
		return nil, fmt.Errorf("reservation: load %s: %w", reservationID, err)
	}
	return &reservation, nil
}

func requireReason(reason string) error {
	if reason == "" {
		return faults.Validation("a reason is required")
	}
	return nil
}
