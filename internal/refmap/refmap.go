// Package refmap serves the static country -> continent -> X-octet-range
// table. The table never changes at runtime, so lookups are cached
// long-term and keyed independently by country name and by X value.
package refmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ipatlas/internal/cache"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	countryKeyPrefix = "refmap:country:"
	xKeyPrefix       = "refmap:x:"
)

type Map struct {
	db    *gorm.DB
	cache cache.Cache
	group singleflight.Group
}

func New(db *gorm.DB, c cache.Cache) *Map {
	return &Map{db: db, cache: c}
}

// Lookup resolves a country name to its mapping.
func (m *Map) Lookup(ctx context.Context, country string) (*domain.CountryMapping, error) {
	key := countryKeyPrefix + strings.ToLower(country)
	if mapping, ok := m.cached(ctx, key); ok {
		return mapping, nil
	}

	result, err, _ := m.group.Do(key, func() (any, error) {
		var mapping domain.CountryMapping
		err := m.db.WithContext(ctx).Where("country = ?", country).First(&mapping).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, faults.CountryNotFound(country)
			}
			return nil, fmt.Errorf("refmap: lookup %q: %w", country, err)
		}

		m.store(ctx, key, &mapping)
		return &mapping, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.CountryMapping), nil
}

// LookupByX resolves an X octet to the mapping whose range covers it.
func (m *Map) LookupByX(ctx context.Context, x uint8) (*domain.CountryMapping, error) {
	key := fmt.Sprintf("%s%d", xKeyPrefix, x)
	if mapping, ok := m.cached(ctx, key); ok {
		return mapping, nil
	}

	result, err, _ := m.group.Do(key, func() (any, error) {
		var mapping domain.CountryMapping
		err := m.db.WithContext(ctx).
			Where("x_start <= ? AND x_end >= ?", x, x).
			First(&mapping).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, faults.CountryNotFound(fmt.Sprintf("x=%d", x))
			}
			return nil, fmt.Errorf("refmap: lookup x=%d: %w", x, err)
		}

		m.store(ctx, key, &mapping)
		return &mapping, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.CountryMapping), nil
}

// ListAll returns every mapping, optionally filtered by continent.
func (m *Map) ListAll(ctx context.Context, continent string) ([]domain.CountryMapping, error) {
	query := m.db.WithContext(ctx).Order("x_start")
	if continent != "" {
		query = query.Where("continent = ?", continent)
	}

	var mappings []domain.CountryMapping
	if err := query.Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("refmap: list mappings: %w", err)
	}
	return mappings, nil
}

func (m *Map) cached(ctx context.Context, key string) (*domain.CountryMapping, bool) {
	raw, ok := m.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var mapping domain.CountryMapping
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		m.cache.Delete(ctx, key)
		return nil, false
	}
	return &mapping, true
}

func (m *Map) store(ctx context.Context, key string, mapping *domain.CountryMapping) {
	data, err := json.Marshal(mapping)
	if err != nil {
		return
	}
	m.cache.Set(ctx, key, string(data), config.RefMapTTL())
}
