// Package index answers "which coordinates are taken" for the
// allocation search. Per-(user,X) Y sets are cached briefly because
// region churn is low; Z sets are recomputed on every call because
// hosts come and go much faster. A stale set can only cause an extra
// retry, never a double allocation - the unique index is authoritative.
package index

import (
	"context"
	"encoding/json"
	"fmt"

	"ipatlas/internal/cache"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const yKeyPrefix = "index:y:"

type Index struct {
	db    *gorm.DB
	cache cache.Cache
	group singleflight.Group
}

func New(db *gorm.DB, c cache.Cache) *Index {
	return &Index{db: db, cache: c}
}

// AllocatedY returns the set of Y octets already allocated for
// (user, x).
func (i *Index) AllocatedY(ctx context.Context, userID string, x uint8) (map[uint8]struct{}, error) {
	key := yKey(userID, x)
	if raw, ok := i.cache.Get(ctx, key); ok {
		var values []uint8
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			return toSet(values), nil
		}
		i.cache.Delete(ctx, key)
	}

	result, err, _ := i.group.Do(key, func() (any, error) {
		var values []uint8
		err := i.db.WithContext(ctx).Model(&domain.Region{}).
			Where("user_id = ? AND x_octet = ?", userID, x).
			Pluck("y_octet", &values).Error
		if err != nil {
			return nil, fmt.Errorf("index: load allocated Y for (%s, %d): %w", userID, x, err)
		}

		if data, err := json.Marshal(values); err == nil {
			i.cache.Set(ctx, key, string(data), config.IndexTTL())
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}

	return toSet(result.([]uint8)), nil
}

// AllocatedZ returns the set of Z octets already allocated inside a
// region, straight from the durable store.
func (i *Index) AllocatedZ(ctx context.Context, userID string, regionID uint64) (map[uint8]struct{}, error) {
	var values []uint8
	err := i.db.WithContext(ctx).Model(&domain.Host{}).
		Where("user_id = ? AND region_id = ?", userID, regionID).
		Pluck("z_octet", &values).Error
	if err != nil {
		return nil, fmt.Errorf("index: load allocated Z for region %d: %w", regionID, err)
	}
	return toSet(values), nil
}

// InvalidateY drops the cached Y set after an allocation or retirement
// under (user, x).
func (i *Index) InvalidateY(ctx context.Context, userID string, x uint8) {
	i.cache.Delete(ctx, yKey(userID, x))
}

func yKey(userID string, x uint8) string {
	return fmt.Sprintf("%s%s:%d", yKeyPrefix, userID, x)
}

func toSet(values []uint8) map[uint8]struct{} {
	set := make(map[uint8]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
