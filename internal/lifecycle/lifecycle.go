// Package lifecycle covers everything after allocation: field updates
// with audited diffs, comment appends, and retirement/release, which
// snapshot the resource into the audit log before hard-deleting the
// live row and returning its quota.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"ipatlas/internal/audit"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"
	"ipatlas/internal/index"
	"ipatlas/internal/quota"

	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	ledger *quota.Ledger
	index  *index.Index
	audit  *audit.Recorder
}

func NewService(db *gorm.DB, ledger *quota.Ledger, idx *index.Index, recorder *audit.Recorder) *Service {
	return &Service{db: db, ledger: ledger, index: idx, audit: recorder}
}

const maxNameLength = 100

func validStatus(status string, allowed []string) bool {
	return slices.Contains(allowed, status)
}

func (s *Service) loadRegion(ctx context.Context, userID string, regionID uint64) (*domain.Region, error) {
	var region domain.Region
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", regionID, userID).
		First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceRegion, strconv.FormatUint(regionID, 10))
		}
		return nil, fmt.Errorf("lifecycle: load region %d: %w", regionID, err)
	}
	return &region, nil
}

func (s *Service) loadHost(ctx context.Context, userID string, hostID uint64) (*domain.Host, error) {
	var host domain.Host
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", hostID, userID).
		First(&host).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceHost, strconv.FormatUint(hostID, 10))
		}
		return nil, fmt.Errorf("lifecycle: load host %d: %w", hostID, err)
	}
	return &host, nil
}

func requireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return faults.Validation("a reason is required")
	}
	return nil
}

// AddComment appends a free-form note to a region or host and records
// it as an update event.
func (s *Service) AddComment(ctx context.Context, resourceType, userID string, id uint64, text string) error {
	if strings.TrimSpace(text) == "" {
		return faults.Validation("comment text must not be empty")
	}

	comment := domain.Comment{Author: userID, Text: text, CreatedAt: time.Now().UTC()}

	switch resourceType {
	case domain.ResourceRegion:
		region, err := s.loadRegion(ctx, userID, id)
		if err != nil {
			return err
		}
		region.Comments = append(region.Comments, comment)
		region.UpdatedAt = time.Now().UTC()
		region.UpdatedBy = userID
		// Update through the model so the json serializer handles the
		// comments column.
		return s.persistUpdate(ctx, userID, domain.ResourceRegion, region.ID, region.Snapshot(),
			[]domain.FieldChange{{Field: "comments", NewValue: text}},
			func(tx *gorm.DB) error {
				return tx.Model(region).
					Select("comments", "updated_at", "updated_by").
					Updates(*region).Error
			})
	case domain.ResourceHost:
		host, err := s.loadHost(ctx, userID, id)
		if err != nil {
			return err
		}
		host.Comments = append(host.Comments, comment)
		host.UpdatedAt = time.Now().UTC()
		host.UpdatedBy = userID
		return s.persistUpdate(ctx, userID, domain.ResourceHost, host.ID, host.Snapshot(),
			[]domain.FieldChange{{Field: "comments", NewValue: text}},
			func(tx *gorm.DB) error {
				return tx.Model(host).
					Select("comments", "updated_at", "updated_by").
					Updates(*host).Error
			})
	default:
		return faults.Validation(fmt.Sprintf("unknown resource type %q", resourceType))
	}
}

// persistUpdate runs an update and its audit event in one transaction.
func (s *Service) persistUpdate(ctx context.Context, userID, resourceType string, id uint64, snapshot map[string]any, changes []domain.FieldChange, apply func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionUpdate,
			ResourceType: resourceType,
			ResourceID:   strconv.FormatUint(id, 10),
			UserID:       userID,
			Snapshot:     snapshot,
			Changes:      changes,
		})
	})
}
