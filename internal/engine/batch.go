package engine

import (
	"context"
	"fmt"
	"strconv"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/database"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// MaxBatchSize caps one batch allocation or release call.
const MaxBatchSize = 100

type BatchRequest struct {
	UserID         string
	RegionID       uint64
	Count          int
	HostnamePrefix string
	DeviceType     string
	OSType         string
	Tags           []string
}

// BatchFailure reports one host that could not be allocated on the
// per-item fallback path.
type BatchFailure struct {
	Hostname string `json:"hostname"`
	ZOctet   uint8  `json:"z_octet"`
	Reason   string `json:"reason"`
}

type BatchResult struct {
	Allocated []domain.Host      `json:"allocated"`
	Failed    []BatchFailure     `json:"failed"`
	Quota     domain.QuotaStatus `json:"quota"`
}

// AllocateHostsBatch allocates up to MaxBatchSize hosts in one call.
// Quota headroom and free capacity are verified before any insert, so a
// request that cannot fully fit fails without side effects. The happy
// path is a single transaction; if a concurrent writer steals one of
// the precomputed coordinates the batch falls back to per-item inserts
// and reports partial failures.
func (e *Engine) AllocateHostsBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BatchOpTimeout())
	defer cancel()

	if req.Count < 1 || req.Count > MaxBatchSize {
		return nil, faults.Validation(fmt.Sprintf("count must be in [1,%d]", MaxBatchSize))
	}
	if err := validateName(req.HostnamePrefix, "hostname prefix"); err != nil {
		return nil, err
	}

	region, err := e.activeRegion(ctx, req.UserID, req.RegionID)
	if err != nil {
		return nil, err
	}

	q, err := e.ledger.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	status := q.StatusFor(domain.QuotaHost)
	if status.Available < int64(req.Count) {
		return nil, faults.QuotaExceeded(string(domain.QuotaHost), status.Limit, status.Current)
	}

	zValues, err := e.freeZValues(ctx, req.UserID, region, req.Count)
	if err != nil {
		return nil, err
	}

	hosts := make([]domain.Host, req.Count)
	for i, z := range zValues {
		hosts[i] = domain.Host{
			UserID:     req.UserID,
			RegionID:   region.ID,
			XOctet:     region.XOctet,
			YOctet:     region.YOctet,
			ZOctet:     z,
			Hostname:   fmt.Sprintf("%s-%d", req.HostnamePrefix, i+1),
			DeviceType: req.DeviceType,
			OSType:     req.OSType,
			Status:     domain.HostStatusActive,
			Tags:       req.Tags,
			CreatedBy:  req.UserID,
			UpdatedBy:  req.UserID,
		}
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range hosts {
			if err := tx.Create(&hosts[i]).Error; err != nil {
				return err
			}
			if err := e.audit.Record(ctx, tx, audit.Entry{
				Action:       domain.ActionCreate,
				ResourceType: domain.ResourceHost,
				ResourceID:   strconv.FormatUint(hosts[i].ID, 10),
				UserID:       req.UserID,
				Snapshot:     hosts[i].Snapshot(),
			}); err != nil {
				return err
			}
		}
		return e.ledger.Adjust(ctx, tx, req.UserID, domain.QuotaHost, int64(len(hosts)))
	})

	if err == nil {
		return &BatchResult{
			Allocated: hosts,
			Quota:     e.quotaSnapshot(ctx, req.UserID, domain.QuotaHost),
		}, nil
	}

	if !database.IsDuplicateKey(err) {
		return nil, err
	}

	log.Warn("batch allocation hit a coordinate race, falling back to per-item inserts",
		"user", req.UserID, "region", region.ID, "count", req.Count)

	return e.allocateBatchItemwise(ctx, req, region)
}

// allocateBatchItemwise retries the batch one host at a time, each with
// its own transaction and a fresh coordinate search. Per-item failures
// are reported, not fatal; quota ends up incremented exactly by the
// number of successes.
func (e *Engine) allocateBatchItemwise(ctx context.Context, req BatchRequest, region *domain.Region) (*BatchResult, error) {
	result := &BatchResult{}

	for i := 0; i < req.Count; i++ {
		hostname := fmt.Sprintf("%s-%d", req.HostnamePrefix, i+1)

		var (
			host *domain.Host
			err  error
		)
		for attempt := 1; attempt <= maxRetries(); attempt++ {
			if attempt > 1 {
				if backoffErr := backoff(ctx, attempt-1); backoffErr != nil {
					return nil, backoffErr
				}
			}

			var z uint8
			z, err = e.FindNextHostCoordinate(ctx, req.UserID, region)
			if err != nil {
				break
			}

			host, err = e.insertHost(ctx, HostRequest{
				UserID:     req.UserID,
				RegionID:   req.RegionID,
				Hostname:   hostname,
				DeviceType: req.DeviceType,
				OSType:     req.OSType,
				Tags:       req.Tags,
			}, region, z)
			if err == nil || !database.IsDuplicateKey(err) {
				break
			}
		}

		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Hostname: hostname, Reason: err.Error()})
			continue
		}
		result.Allocated = append(result.Allocated, *host)
	}

	result.Quota = e.quotaSnapshot(ctx, req.UserID, domain.QuotaHost)
	return result, nil
}

// freeZValues precomputes the first count free Z octets of a region,
// checking capacity up front.
func (e *Engine) freeZValues(ctx context.Context, userID string, region *domain.Region, count int) ([]uint8, error) {
	allocated, err := e.index.AllocatedZ(ctx, userID, region.ID)
	if err != nil {
		return nil, err
	}
	reserved, err := e.index.ReservedZ(ctx, userID, region.XOctet, region.YOctet)
	if err != nil {
		return nil, err
	}

	taken := make(map[uint8]struct{}, len(allocated)+len(reserved))
	for z := range allocated {
		taken[z] = struct{}{}
	}
	for z := range reserved {
		taken[z] = struct{}{}
	}

	free := make([]uint8, 0, count)
	for z := domain.MinZOctet; z <= domain.MaxZOctet && len(free) < count; z++ {
		if _, used := taken[uint8(z)]; !used {
			free = append(free, uint8(z))
		}
	}

	if len(free) < count {
		return nil, faults.CapacityExhausted("host", domain.HostsPerRegion, len(allocated))
	}
	return free, nil
}
