package lifecycle

import (
	"context"
	"fmt"
	"strconv"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// RetireResult reports what one retirement removed.
type RetireResult struct {
	RetiredHosts int                `json:"retired_hosts"`
	Quota        domain.QuotaStatus `json:"quota"`
}

// ItemFailure reports a per-item error inside a bulk release.
type ItemFailure struct {
	HostID uint64 `json:"host_id"`
	Reason string `json:"reason"`
}

// BulkReleaseResult aggregates per-item release outcomes.
type BulkReleaseResult struct {
	Released []uint64      `json:"released"`
	Failed   []ItemFailure `json:"failed"`
}

// MaxBulkRelease caps one bulk release call.
const MaxBulkRelease = 100

// RetireRegion snapshots the region into the audit log, hard-deletes it
// and returns its quota. With cascade, every child host is retired the
// same way first; without cascade a populated region is rejected.
func (s *Service) RetireRegion(ctx context.Context, userID string, regionID uint64, reason string, cascade bool) (*RetireResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BatchOpTimeout())
	defer cancel()

	if err := requireReason(reason); err != nil {
		return nil, err
	}

	region, err := s.loadRegion(ctx, userID, regionID)
	if err != nil {
		return nil, err
	}

	var hosts []domain.Host
	if err := s.db.WithContext(ctx).Where("region_id = ?", region.ID).Find(&hosts).Error; err != nil {
		return nil, fmt.Errorf("lifecycle: load hosts of region %d: %w", region.ID, err)
	}

	if len(hosts) > 0 && !cascade {
		return nil, faults.Validation(
			fmt.Sprintf("region %q still has %d hosts; release them or retire with cascade", region.RegionName, len(hosts)))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range hosts {
			if err := s.deleteHostTx(ctx, tx, &hosts[i], reason, domain.ActionRetire); err != nil {
				return err
			}
		}
		if len(hosts) > 0 {
			if err := s.ledger.Adjust(ctx, tx, userID, domain.QuotaHost, -int64(len(hosts))); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionRetire,
			ResourceType: domain.ResourceRegion,
			ResourceID:   strconv.FormatUint(region.ID, 10),
			UserID:       userID,
			Reason:       reason,
			Snapshot:     region.Snapshot(),
		}); err != nil {
			return err
		}
		if err := tx.Delete(&domain.Region{}, region.ID).Error; err != nil {
			return fmt.Errorf("lifecycle: delete region %d: %w", region.ID, err)
		}
		return s.ledger.Adjust(ctx, tx, userID, domain.QuotaRegion, -1)
	})
	if err != nil {
		return nil, err
	}

	s.index.InvalidateY(ctx, userID, region.XOctet)
	log.Info("region retired",
		"user", userID,
		"region", region.RegionName,
		"cidr", region.CIDR,
		"cascaded_hosts", len(hosts))

	return &RetireResult{RetiredHosts: len(hosts), Quota: s.quotaSnapshot(ctx, userID, domain.QuotaRegion)}, nil
}

// ReleaseHost snapshots one host into the audit log, hard-deletes it
// and returns its quota.
func (s *Service) ReleaseHost(ctx context.Context, userID string, hostID uint64, reason string) (*RetireResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	if err := requireReason(reason); err != nil {
		return nil, err
	}

	host, err := s.loadHost(ctx, userID, hostID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deleteHostTx(ctx, tx, host, reason, domain.ActionRelease); err != nil {
			return err
		}
		return s.ledger.Adjust(ctx, tx, userID, domain.QuotaHost, -1)
	})
	if err != nil {
		return nil, err
	}

	return &RetireResult{Quota: s.quotaSnapshot(ctx, userID, domain.QuotaHost)}, nil
}

// BulkRelease releases up to MaxBulkRelease hosts. Items fail
// individually; one bad id does not abort the rest.
func (s *Service) BulkRelease(ctx context.Context, userID string, hostIDs []uint64, reason string) (*BulkReleaseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BatchOpTimeout())
	defer cancel()

	if len(hostIDs) == 0 || len(hostIDs) > MaxBulkRelease {
		return nil, faults.Validation(fmt.Sprintf("host ids must number between 1 and %d", MaxBulkRelease))
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	result := &BulkReleaseResult{}
	for _, hostID := range hostIDs {
		host, err := s.loadHost(ctx, userID, hostID)
		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{HostID: hostID, Reason: err.Error()})
			continue
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.deleteHostTx(ctx, tx, host, reason, domain.ActionRelease); err != nil {
				return err
			}
			return s.ledger.Adjust(ctx, tx, userID, domain.QuotaHost, -1)
		})
		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{HostID: hostID, Reason: err.Error()})
			continue
		}
		result.Released = append(result.Released, hostID)
	}

	return result, nil
}

// deleteHostTx snapshots and removes one host inside tx. Quota is the
// caller's responsibility so cascades can decrement once.
func (s *Service) deleteHostTx(ctx context.Context, tx *gorm.DB, host *domain.Host, reason, action string) error {
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Action:       action,
		ResourceType: domain.ResourceHost,
		ResourceID:   strconv.FormatUint(host.ID, 10),
		UserID:       host.UserID,
		Reason:       reason,
		Snapshot:     host.Snapshot(),
	}); err != nil {
		return err
	}
	if err := tx.Delete(&domain.Host{}, host.ID).Error; err != nil {
		return fmt.Errorf("lifecycle: delete host %d: %w", host.ID, err)
	}
	return nil
}

func (s *Service) quotaSnapshot(ctx context.Context, userID string, kind domain.QuotaKind) domain.QuotaStatus {
	q, err := s.ledger.Get(ctx, userID)
	if err != nil {
		return domain.QuotaStatus{Kind: kind}
	}
	return q.StatusFor(kind)
}
