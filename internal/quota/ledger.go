// Package quota keeps the per-user region and host counters. Counters
// are only moved through guarded single-statement updates so the quota
// invariant holds even when many writers race; the application never
// does a read-modify-write cycle on them.
package quota

import (
	"context"
	"encoding/json"
	"fmt"

	"ipatlas/internal/cache"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cacheKeyPrefix = "quota:user:"

type Ledger struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewLedger(db *gorm.DB, c cache.Cache) *Ledger {
	return &Ledger{db: db, cache: c}
}

// Get returns the quota document for a user, creating one with the
// configured defaults on first access.
func (l *Ledger) Get(ctx context.Context, userID string) (*domain.UserQuota, error) {
	key := cacheKeyPrefix + userID
	if raw, ok := l.cache.Get(ctx, key); ok {
		var q domain.UserQuota
		if err := json.Unmarshal([]byte(raw), &q); err == nil {
			return &q, nil
		}
		l.cache.Delete(ctx, key)
	}

	if err := l.ensure(l.db.WithContext(ctx), userID); err != nil {
		return nil, err
	}

	var q domain.UserQuota
	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&q).Error; err != nil {
		return nil, fmt.Errorf("quota: fetch %q: %w", userID, err)
	}

	if data, err := json.Marshal(&q); err == nil {
		l.cache.Set(ctx, key, string(data), config.QuotaTTL())
	}

	return &q, nil
}

// Check verifies the user has headroom for one more resource of the
// given kind. Crossing the warn threshold logs a warning but is not an
// error; only current >= limit fails.
func (l *Ledger) Check(ctx context.Context, userID string, kind domain.QuotaKind) (domain.QuotaStatus, error) {
	q, err := l.Get(ctx, userID)
	if err != nil {
		return domain.QuotaStatus{}, err
	}

	status := q.StatusFor(kind)
	if status.Current >= status.Limit {
		return status, faults.QuotaExceeded(string(kind), status.Limit, status.Current)
	}

	warnPercent := config.GetConfig().Quota.WarnPercent
	if warnPercent > 0 && status.UsagePercent >= float64(warnPercent) {
		log.Warn("quota usage high",
			"user", userID,
			"kind", kind,
			"current", status.Current,
			"limit", status.Limit,
			"percent", fmt.Sprintf("%.1f", status.UsagePercent))
	}

	return status, nil
}

// Adjust moves a counter by delta inside tx. Positive deltas are guarded
// against the limit and fail with QuotaExceeded when no headroom is
// left; negative deltas clamp at zero. The cached document is dropped on
// success so the next read sees the durable row.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, userID string, kind domain.QuotaKind, delta int64) error {
	if delta == 0 {
		return nil
	}

	if err := l.ensure(tx, userID); err != nil {
		return err
	}

	column := "region_count"
	limitColumn := "region_quota"
	if kind == domain.QuotaHost {
		column = "host_count"
		limitColumn = "host_quota"
	}

	var result *gorm.DB
	if delta > 0 {
		result = tx.Model(&domain.UserQuota{}).
			Where(fmt.Sprintf("user_id = ? AND %s + ? <= %s", column, limitColumn), userID, delta).
			Update(column, gorm.Expr(fmt.Sprintf("%s + ?", column), delta))
	} else {
		result = tx.Model(&domain.UserQuota{}).
			Where("user_id = ?", userID).
			Update(column, gorm.Expr(
				fmt.Sprintf("CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END", column, column),
				delta, delta))
	}

	if result.Error != nil {
		return fmt.Errorf("quota: adjust %s for %q: %w", kind, userID, result.Error)
	}

	if delta > 0 && result.RowsAffected == 0 {
		q, err := l.fresh(ctx, userID)
		if err != nil {
			return err
		}
		status := q.StatusFor(kind)
		return faults.QuotaExceeded(string(kind), status.Limit, status.Current)
	}

	l.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached quota document for a user.
func (l *Ledger) Invalidate(ctx context.Context, userID string) {
	l.cache.Delete(ctx, cacheKeyPrefix+userID)
}

// SetLimits overrides a user's quota limits, creating the row if needed.
func (l *Ledger) SetLimits(ctx context.Context, userID string, regionQuota, hostQuota int64) error {
	if regionQuota < 0 || hostQuota < 0 {
		return faults.Validation("quota limits must be non-negative")
	}

	if err := l.ensure(l.db.WithContext(ctx), userID); err != nil {
		return err
	}

	err := l.db.WithContext(ctx).Model(&domain.UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"region_quota": regionQuota, "host_quota": hostQuota}).Error
	if err != nil {
		return fmt.Errorf("quota: set limits for %q: %w", userID, err)
	}

	l.Invalidate(ctx, userID)
	return nil
}

// ensure lazily creates the quota row with the configured defaults.
func (l *Ledger) ensure(tx *gorm.DB, userID string) error {
	cfg := config.GetConfig().Quota
	row := domain.UserQuota{
		UserID:      userID,
		RegionQuota: cfg.DefaultRegionQuota,
		HostQuota:   cfg.DefaultHostQuota,
	}

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("quota: ensure row for %q: %w", userID, err)
	}
	return nil
}

// fresh bypasses the cache for the error path, where the caller is
// about to report exact numbers.
func (l *Ledger) fresh(ctx context.Context, userID string) (*domain.UserQuota, error) {
	var q domain.UserQuota
	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&q).Error; err != nil {
		return nil, fmt.Errorf("quota: fetch %q: %w", userID, err)
	}
	return &q, nil
}
