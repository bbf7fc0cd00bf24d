package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/database"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"gorm.io/gorm"
)

const maxNameLength = 100

type RegionRequest struct {
	UserID      string
	Country     string
	RegionName  string
	Description string
	Owner       string
	Tags        []string
}

// RegionAllocation is an allocated region plus the post-allocation
// quota snapshot.
type RegionAllocation struct {
	Region domain.Region      `json:"region"`
	Quota  domain.QuotaStatus `json:"quota"`
}

// AllocateRegion hands out the lowest free (X,Y) block for the user in
// the given country. The insert, the quota increment and the audit
// event commit in one transaction; a coordinate race surfaces as a
// duplicate-key error and triggers a recompute-and-retry, bounded by
// the configured attempt budget.
func (e *Engine) AllocateRegion(ctx context.Context, req RegionRequest) (*RegionAllocation, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	if err := validateName(req.RegionName, "region name"); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, faults.Validation("user id must not be empty")
	}

	if _, err := e.ledger.Check(ctx, req.UserID, domain.QuotaRegion); err != nil {
		return nil, err
	}

	mapping, err := e.refMap.Lookup(ctx, req.Country)
	if err != nil {
		return nil, err
	}

	var nameCount int64
	err = e.db.WithContext(ctx).Model(&domain.Region{}).
		Where("user_id = ? AND country = ? AND region_name = ?", req.UserID, mapping.Country, req.RegionName).
		Count(&nameCount).Error
	if err != nil {
		return nil, fmt.Errorf("engine: check region name: %w", err)
	}
	if nameCount > 0 {
		return nil, faults.DuplicateAllocation(
			fmt.Sprintf("region name %q already exists in %s", req.RegionName, mapping.Country),
			map[string]any{"region_name": req.RegionName, "country": mapping.Country})
	}

	for attempt := 1; attempt <= maxRetries(); attempt++ {
		if attempt > 1 {
			if err := backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		x, y, err := e.FindNextRegionCoordinate(ctx, req.UserID, req.Country)
		if err != nil {
			return nil, err
		}

		region := domain.Region{
			UserID:      req.UserID,
			XOctet:      x,
			YOctet:      y,
			Country:     mapping.Country,
			Continent:   mapping.Continent,
			RegionName:  req.RegionName,
			Description: req.Description,
			Owner:       req.Owner,
			Status:      domain.RegionStatusActive,
			Tags:        req.Tags,
			CreatedBy:   req.UserID,
			UpdatedBy:   req.UserID,
		}

		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&region).Error; err != nil {
				return err
			}
			if err := e.ledger.Adjust(ctx, tx, req.UserID, domain.QuotaRegion, 1); err != nil {
				return err
			}
			return e.audit.Record(ctx, tx, audit.Entry{
				Action:       domain.ActionCreate,
				ResourceType: domain.ResourceRegion,
				ResourceID:   strconv.FormatUint(region.ID, 10),
				UserID:       req.UserID,
				Snapshot:     region.Snapshot(),
			})
		})

		if err == nil {
			e.index.InvalidateY(ctx, req.UserID, x)
			return &RegionAllocation{Region: region, Quota: e.quotaSnapshot(ctx, req.UserID, domain.QuotaRegion)}, nil
		}

		if database.IsDuplicateKey(err) {
			// A concurrent writer claimed the coordinate first.
			e.index.InvalidateY(ctx, req.UserID, x)
			continue
		}
		return nil, err
	}

	return nil, faults.DuplicateAllocation(
		fmt.Sprintf("could not claim a free coordinate in %s after %d attempts", mapping.Country, maxRetries()),
		map[string]any{"country": mapping.Country, "attempts": maxRetries()})
}

func (e *Engine) quotaSnapshot(ctx context.Context, userID string, kind domain.QuotaKind) domain.QuotaStatus {
	q, err := e.ledger.Get(ctx, userID)
	if err != nil {
		return domain.QuotaStatus{Kind: kind}
	}
	return q.StatusFor(kind)
}

func validateName(name, label string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return faults.Validation(label + " must not be empty")
	}
	if len(name) > maxNameLength {
		return faults.Validation(fmt.Sprintf("%s must be at most %d characters", label, maxNameLength))
	}
	return nil
}
