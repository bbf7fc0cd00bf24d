package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"gorm.io/gorm"
)

// RegionUpdate carries the mutable region fields. Nil means "leave
// unchanged"; coordinates, country and ownership are immutable.
type RegionUpdate struct {
	RegionName  *string
	Description *string
	Owner       *string
	Status      *string
	Tags        *[]string
}

// HostUpdate carries the mutable host fields.
type HostUpdate struct {
	Hostname   *string
	DeviceType *string
	OSType     *string
	Notes      *string
	Status     *string
	Tags       *[]string
}

// UpdateRegion applies a field-level update. If nothing actually
// changes the stored region is returned untouched: no audit event, no
// updated_at bump.
func (s *Service) UpdateRegion(ctx context.Context, userID string, regionID uint64, upd RegionUpdate) (*domain.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	region, err := s.loadRegion(ctx, userID, regionID)
	if err != nil {
		return nil, err
	}

	var columns []string
	var changes []domain.FieldChange

	if upd.RegionName != nil && *upd.RegionName != region.RegionName {
		name := *upd.RegionName
		if strings.TrimSpace(name) == "" {
			return nil, faults.Validation("region name must not be empty")
		}
		if len(name) > maxNameLength {
			return nil, faults.Validation(fmt.Sprintf("region name must be at most %d characters", maxNameLength))
		}

		var count int64
		err := s.db.WithContext(ctx).Model(&domain.Region{}).
			Where("user_id = ? AND country = ? AND region_name = ? AND id <> ?",
				userID, region.Country, name, region.ID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("lifecycle: check region name: %w", err)
		}
		if count > 0 {
			return nil, faults.DuplicateAllocation(
				fmt.Sprintf("region name %q already exists in %s", name, region.Country),
				map[string]any{"region_name": name, "country": region.Country})
		}

		changes = append(changes, domain.FieldChange{Field: "region_name", OldValue: region.RegionName, NewValue: name})
		columns = append(columns, "region_name")
		region.RegionName = name
	}

	if upd.Description != nil && *upd.Description != region.Description {
		changes = append(changes, domain.FieldChange{Field: "description", OldValue: region.Description, NewValue: *upd.Description})
		columns = append(columns, "description")
		region.Description = *upd.Description
	}

	if upd.Owner != nil && *upd.Owner != region.Owner {
		changes = append(changes, domain.FieldChange{Field: "owner", OldValue: region.Owner, NewValue: *upd.Owner})
		columns = append(columns, "owner")
		region.Owner = *upd.Owner
	}

	if upd.Status != nil && *upd.Status != region.Status {
		if !validStatus(*upd.Status, domain.RegionStatuses) {
			return nil, faults.Validation(fmt.Sprintf("invalid region status %q", *upd.Status))
		}
		changes = append(changes, domain.FieldChange{Field: "status", OldValue: region.Status, NewValue: *upd.Status})
		columns = append(columns, "status")
		region.Status = *upd.Status
	}

	if upd.Tags != nil && !slices.Equal(*upd.Tags, region.Tags) {
		changes = append(changes, domain.FieldChange{Field: "tags", OldValue: region.Tags, NewValue: *upd.Tags})
		columns = append(columns, "tags")
		region.Tags = *upd.Tags
	}

	if len(changes) == 0 {
		return region, nil
	}

	region.UpdatedAt = time.Now().UTC()
	region.UpdatedBy = userID
	columns = append(columns, "updated_at", "updated_by")

	// The update goes through the populated model so serializer-backed
	// columns such as tags are encoded; Select keeps it to the changed
	// fields, zero values included.
	err = s.persistUpdate(ctx, userID, domain.ResourceRegion, region.ID, region.Snapshot(), changes,
		func(tx *gorm.DB) error {
			return tx.Model(region).Select(columns).Updates(*region).Error
		})
	if err != nil {
		return nil, err
	}
	return region, nil
}

// UpdateHost applies a field-level update with the same no-op
// short-circuit as UpdateRegion.
func (s *Service) UpdateHost(ctx context.Context, userID string, hostID uint64, upd HostUpdate) (*domain.Host, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	host, err := s.loadHost(ctx, userID, hostID)
	if err != nil {
		return nil, err
	}

	var columns []string
	var changes []domain.FieldChange

	if upd.Hostname != nil && *upd.Hostname != host.Hostname {
		hostname := *upd.Hostname
		if strings.TrimSpace(hostname) == "" {
			return nil, faults.Validation("hostname must not be empty")
		}
		if len(hostname) > maxNameLength {
			return nil, faults.Validation(fmt.Sprintf("hostname must be at most %d characters", maxNameLength))
		}

		var count int64
		err := s.db.WithContext(ctx).Model(&domain.Host{}).
			Where("region_id = ? AND hostname = ? AND id <> ?", host.RegionID, hostname, host.ID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("lifecycle: check hostname: %w", err)
		}
		if count > 0 {
			return nil, faults.DuplicateAllocation(
				fmt.Sprintf("hostname %q already exists in region %d", hostname, host.RegionID),
				map[string]any{"hostname": hostname, "region_id": host.RegionID})
		}

		changes = append(changes, domain.FieldChange{Field: "hostname", OldValue: host.Hostname, NewValue: hostname})
		columns = append(columns, "hostname")
		host.Hostname = hostname
	}

	if upd.DeviceType != nil && *upd.DeviceType != host.DeviceType {
		changes = append(changes, domain.FieldChange{Field: "device_type", OldValue: host.DeviceType, NewValue: *upd.DeviceType})
		columns = append(columns, "device_type")
		host.DeviceType = *upd.DeviceType
	}

	if upd.OSType != nil && *upd.OSType != host.OSType {
		changes = append(changes, domain.FieldChange{Field: "os_type", OldValue: host.OSType, NewValue: *upd.OSType})
		columns = append(columns, "os_type")
		host.OSType = *upd.OSType
	}

	if upd.Notes != nil && *upd.Notes != host.Notes {
		changes = append(changes, domain.FieldChange{Field: "notes", OldValue: host.Notes, NewValue: *upd.Notes})
		columns = append(columns, "notes")
		host.Notes = *upd.Notes
	}

	if upd.Status != nil && *upd.Status != host.Status {
		if !validStatus(*upd.Status, domain.HostStatuses) {
			return nil, faults.Validation(fmt.Sprintf("invalid host status %q", *upd.Status))
		}
		changes = append(changes, domain.FieldChange{Field: "status", OldValue: host.Status, NewValue: *upd.Status})
		columns = append(columns, "status")
		host.Status = *upd.Status
	}

	if upd.Tags != nil && !slices.Equal(*upd.Tags, host.Tags) {
		changes = append(changes, domain.FieldChange{Field: "tags", OldValue: host.Tags, NewValue: *upd.Tags})
		columns = append(columns, "tags")
		host.Tags = *upd.Tags
	}

	if len(changes) == 0 {
		return host, nil
	}

	host.UpdatedAt = time.Now().UTC()
	host.UpdatedBy = userID
	columns = append(columns, "updated_at", "updated_by")

	err = s.persistUpdate(ctx, userID, domain.ResourceHost, host.ID, host.Snapshot(), changes,
		func(tx *gorm.DB) error {
			return tx.Model(host).Select(columns).Updates(*host).Error
		})
	if err != nil {
		return nil, err
	}
	return host, nil
}
