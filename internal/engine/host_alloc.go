package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/database"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"gorm.io/gorm"
)

type HostRequest struct {
	UserID     string
	RegionID   uint64
	Hostname   string
	DeviceType string
	OSType     string
	Notes      string
	Tags       []string

	// RequestedZ pins the allocation to a specific Z octet instead of
	// searching for the lowest free one. Used for fixed assignments; a
	// taken or reserved coordinate fails without retrying.
	RequestedZ *uint8
}

// HostAllocation is an allocated host plus the post-allocation quota
// snapshot.
type HostAllocation struct {
	Host  domain.Host        `json:"host"`
	Quota domain.QuotaStatus `json:"quota"`
}

// AllocateHost hands out one address inside a region the user owns.
// Mirrors AllocateRegion: quota check up front, insert + quota + audit
// in one transaction, recompute-and-retry on a coordinate race.
func (e *Engine) AllocateHost(ctx context.Context, req HostRequest) (*HostAllocation, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	if err := validateName(req.Hostname, "hostname"); err != nil {
		return nil, err
	}

	if _, err := e.ledger.Check(ctx, req.UserID, domain.QuotaHost); err != nil {
		return nil, err
	}

	region, err := e.activeRegion(ctx, req.UserID, req.RegionID)
	if err != nil {
		return nil, err
	}

	if err := e.checkHostnameFree(ctx, region.ID, req.Hostname); err != nil {
		return nil, err
	}

	if req.RequestedZ != nil {
		return e.allocateHostAt(ctx, req, region, *req.RequestedZ)
	}

	for attempt := 1; attempt <= maxRetries(); attempt++ {
		if attempt > 1 {
			if err := backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		z, err := e.FindNextHostCoordinate(ctx, req.UserID, region)
		if err != nil {
			return nil, err
		}

		host, err := e.insertHost(ctx, req, region, z)
		if err == nil {
			return &HostAllocation{Host: *host, Quota: e.quotaSnapshot(ctx, req.UserID, domain.QuotaHost)}, nil
		}
		if database.IsDuplicateKey(err) {
			continue
		}
		return nil, err
	}

	return nil, faults.DuplicateAllocation(
		fmt.Sprintf("could not claim a free address in region %d after %d attempts", region.ID, maxRetries()),
		map[string]any{"region_id": region.ID, "attempts": maxRetries()})
}

// allocateHostAt performs a fixed-coordinate allocation. Reservations
// held by anyone on the coordinate block it; a duplicate-key conflict
// is terminal because there is no alternative coordinate to fall back
// to.
func (e *Engine) allocateHostAt(ctx context.Context, req HostRequest, region *domain.Region, z uint8) (*HostAllocation, error) {
	if z < domain.MinZOctet || z > domain.MaxZOctet {
		return nil, faults.Validation(fmt.Sprintf("z octet must be in [%d,%d]", domain.MinZOctet, domain.MaxZOctet))
	}

	reserved, err := e.index.ReservedAt(ctx, req.UserID, region.XOctet, region.YOctet, &z, "")
	if err != nil {
		return nil, err
	}
	if reserved {
		return nil, faults.DuplicateAllocation(
			fmt.Sprintf("address %s is held by a reservation", domain.HostAddress(region.XOctet, region.YOctet, z)),
			map[string]any{"x": region.XOctet, "y": region.YOctet, "z": z})
	}

	host, err := e.insertHost(ctx, req, region, z)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, faults.DuplicateAllocation(
				fmt.Sprintf("address %s is already allocated", domain.HostAddress(region.XOctet, region.YOctet, z)),
				map[string]any{"x": region.XOctet, "y": region.YOctet, "z": z})
		}
		return nil, err
	}

	return &HostAllocation{Host: *host, Quota: e.quotaSnapshot(ctx, req.UserID, domain.QuotaHost)}, nil
}

// insertHost commits one host, its quota increment and its audit event.
func (e *Engine) insertHost(ctx context.Context, req HostRequest, region *domain.Region, z uint8) (*domain.Host, error) {
	host := domain.Host{
		UserID:     req.UserID,
		RegionID:   region.ID,
		XOctet:     region.XOctet,
		YOctet:     region.YOctet,
		ZOctet:     z,
		Hostname:   req.Hostname,
		DeviceType: req.DeviceType,
		OSType:     req.OSType,
		Status:     domain.HostStatusActive,
		Tags:       req.Tags,
		Notes:      req.Notes,
		CreatedBy:  req.UserID,
		UpdatedBy:  req.UserID,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&host).Error; err != nil {
			return err
		}
		if err := e.ledger.Adjust(ctx, tx, req.UserID, domain.QuotaHost, 1); err != nil {
			return err
		}
		return e.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionCreate,
			ResourceType: domain.ResourceHost,
			ResourceID:   strconv.FormatUint(host.ID, 10),
			UserID:       req.UserID,
			Snapshot:     host.Snapshot(),
		})
	})
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// activeRegion loads a region the user owns and verifies it accepts
// allocations. A wrong owner reads the same as a missing id.
func (e *Engine) activeRegion(ctx context.Context, userID string, regionID uint64) (*domain.Region, error) {
	var region domain.Region
	err := e.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", regionID, userID).
		First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceRegion, strconv.FormatUint(regionID, 10))
		}
		return nil, fmt.Errorf("engine: load region %d: %w", regionID, err)
	}

	if region.Status != domain.RegionStatusActive {
		return nil, faults.Validation(fmt.Sprintf("region %q is %s, not Active", region.RegionName, region.Status))
	}
	return &region, nil
}

func (e *Engine) checkHostnameFree(ctx context.Context, regionID uint64, hostname string) error {
	var count int64
	err := e.db.WithContext(ctx).Model(&domain.Host{}).
		Where("region_id = ? AND hostname = ?", regionID, hostname).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("engine: check hostname: %w", err)
	}
	if count > 0 {
		return faults.DuplicateAllocation(
			fmt.Sprintf("hostname %q already exists in region %d", hostname, regionID),
			map[string]any{"hostname": hostname, "region_id": regionID})
	}
	return nil
}
