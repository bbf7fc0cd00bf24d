package index

import (
	"context"
	"fmt"
	"time"

	"ipatlas/internal/domain"
)

// Reservation lookups are never cached: a hold must block its
// coordinate the moment it is created. An expired reservation stops
// counting immediately, whether or not the sweep has flipped its
// status yet.

// ReservedY returns the Y octets under (user, x) held by active
// region-level reservations.
func (i *Index) ReservedY(ctx context.Context, userID string, x uint8) (map[uint8]struct{}, error) {
	var values []uint8
	err := i.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("user_id = ? AND x_octet = ? AND z_octet IS NULL AND status = ? AND expires_at > ?",
			userID, x, domain.ReservationStatusActive, time.Now()).
		Pluck("y_octet", &values).Error
	if err != nil {
		return nil, fmt.Errorf("index: load reserved Y for (%s, %d): %w", userID, x, err)
	}
	return toSet(values), nil
}

// ReservedZ returns the Z octets inside (user, x, y) held by active
// host-level reservations.
func (i *Index) ReservedZ(ctx context.Context, userID string, x, y uint8) (map[uint8]struct{}, error) {
	var values []uint8
	err := i.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("user_id = ? AND x_octet = ? AND y_octet = ? AND z_octet IS NOT NULL AND status = ? AND expires_at > ?",
			userID, x, y, domain.ReservationStatusActive, time.Now()).
		Pluck("z_octet", &values).Error
	if err != nil {
		return nil, fmt.Errorf("index: load reserved Z for (%s, %d, %d): %w", userID, x, y, err)
	}
	return toSet(values), nil
}

// ReservedAt reports whether an active reservation holds the exact
// coordinate. A nil z matches region-level holds, a non-nil z matches
// host-level holds. excludeID skips one reservation, used when
// converting it.
func (i *Index) ReservedAt(ctx context.Context, userID string, x, y uint8, z *uint8, excludeID string) (bool, error) {
	query := i.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("user_id = ? AND x_octet = ? AND y_octet = ? AND status = ? AND expires_at > ?",
			userID, x, y, domain.ReservationStatusActive, time.Now())

	if z == nil {
		query = query.Where("z_octet IS NULL")
	} else {
		query = query.Where("z_octet = ?", *z)
	}
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("index: check reservation at (%s, %d, %d): %w", userID, x, y, err)
	}
	return count > 0, nil
}
