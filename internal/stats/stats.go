// Package stats computes utilization figures across the hierarchy:
// how full a region is, how much of a country's block space is carved
// into regions, and the rollup per continent. Figures are derived
// entirely from counts, cached briefly, and never block allocation.
package stats

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
	"ipatlas/internal/refmap"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	refMap *refmap.Map
}

func New(db *gorm.DB, c cache.Cache, refMap *refmap.Map) *Service {
	return &Service{db: db, cache: c, refMap: refMap}
}

// RegionUtilization reports how many of a region's 254 host addresses
// are taken.
type RegionUtilization struct {
	RegionID     uint64  `json:"region_id"`
	RegionName   string  `json:"region_name"`
	CIDR         string  `json:"cidr"`
	HostCount    int64   `json:"host_count"`
	HostCapacity int64   `json:"host_capacity"`
	UsagePercent float64 `json:"usage_percent"`
}

// CountryUtilization reports how much of a country's X range has been
// carved into /24 regions by one user.
type CountryUtilization struct {
	Country        string  `json:"country"`
	Continent      string  `json:"continent"`
	RegionCount    int64   `json:"region_count"`
	RegionCapacity int64   `json:"region_capacity"`
	UsagePercent   float64 `json:"usage_percent"`
}

// ContinentUtilization aggregates the country figures of a continent.
type ContinentUtilization struct {
	Continent      string               `json:"continent"`
	RegionCount    int64                `json:"region_count"`
	RegionCapacity int64                `json:"region_capacity"`
	UsagePercent   float64              `json:"usage_percent"`
	Countries      []CountryUtilization `json:"countries"`
}

// Overview is the full picture for one user.
type Overview struct {
	TotalRegions int64                  `json:"total_regions"`
	TotalHosts   int64                  `json:"total_hosts"`
	Continents   []ContinentUtilization `json:"continents"`
}

func (s *Service) Region(ctx context.Context, userID string, regionID uint64) (*RegionUtilization, error) {
	var region domain.Region
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", regionID, userID).First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceRegion, fmt.Sprintf("%d", regionID))
		}
		return nil, fmt.Errorf("stats: load region: %w", err)
	}

	var hosts int64
	err = s.db.WithContext(ctx).Model(&domain.Host{}).Where("region_id = ?", region.ID).Count(&hosts).Error
	if err != nil {
		return nil, fmt.Errorf("stats: count hosts: %w", err)
	}

	return &RegionUtilization{
		RegionID:     region.ID,
		RegionName:   region.RegionName,
		CIDR:         region.CIDR,
		HostCount:    hosts,
		HostCapacity: domain.HostsPerRegion,
		UsagePercent: percent(hosts, domain.HostsPerRegion),
	}, nil
}

func (s *Service) Country(ctx context.Context, userID, country string) (*CountryUtilization, error) {
	mapping, err := s.refMap.Lookup(ctx, country)
	if err != nil {
		return nil, err
	}
	return s.countryFor(ctx, userID, mapping)
}

func (s *Service) countryFor(ctx context.Context, userID string, mapping *domain.CountryMapping) (*CountryUtilization, error) {
	var regions int64
	err := s.db.WithContext(ctx).Model(&domain.Region{}).
		Where("user_id = ? AND country = ?", userID, mapping.Country).
		Count(&regions).Error
	if err != nil {
		return nil, fmt.Errorf("stats: count regions for %s: %w", mapping.Country, err)
	}

	capacity := int64(mapping.RegionCapacity())
	return &CountryUtilization{
		Country:        mapping.Country,
		Continent:      mapping.Continent,
		RegionCount:    regions,
		RegionCapacity: capacity,
		UsagePercent:   percent(regions, capacity),
	}, nil
}

// Continent fans the per-country counts out concurrently; the counts
// are independent selects and the mapping table is small.
func (s *Service) Continent(ctx context.Context, userID, continent string) (*ContinentUtilization, error) {
	mappings, err := s.refMap.ListAll(ctx, continent)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, faults.NotFound("continent", continent)
	}
	return s.continentFor(ctx, userID, continent, mappings)
}

func (s *Service) continentFor(ctx context.Context, userID, continent string, mappings []domain.CountryMapping) (*ContinentUtilization, error) {
	countries := make([]CountryUtilization, len(mappings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range mappings {
		i := i
		g.Go(func() error {
			u, err := s.countryFor(gctx, userID, &mappings[i])
			if err != nil {
				return err
			}
			countries[i] = *u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := ContinentUtilization{Continent: continent, Countries: countries}
	for _, c := range countries {
		out.RegionCount += c.RegionCount
		out.RegionCapacity += c.RegionCapacity
	}
	out.UsagePercent = percent(out.RegionCount, out.RegionCapacity)
	return &out, nil
}

// UserOverview builds the whole rollup for a user. The result is
// cached for a short window since dashboards poll it.
func (s *Service) UserOverview(ctx context.Context, userID string) (*Overview, error) {
	key := "stats:overview:" + strings.ToLower(userID)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached Overview
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	mappings, err := s.refMap.ListAll(ctx, "")
	if err != nil {
		return nil, err
	}

	byContinent := make(map[string][]domain.CountryMapping)
	var order []string
	for _, m := range mappings {
		if _, seen := byContinent[m.Continent]; !seen {
			order = append(order, m.Continent)
		}
		byContinent[m.Continent] = append(byContinent[m.Continent], m)
	}

	overview := Overview{Continents: make([]ContinentUtilization, len(order))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, continent := range order {
		i, continent := i, continent
		g.Go(func() error {
			u, err := s.continentFor(gctx, userID, continent, byContinent[continent])
			if err != nil {
				return err
			}
			overview.Continents[i] = *u
			return nil
		})
	}
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&domain.Region{}).
			Where("user_id = ?", userID).Count(&overview.TotalRegions).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&domain.Host{}).
			Where("user_id = ?", userID).Count(&overview.TotalHosts).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stats: build overview: %w", err)
	}

	if raw, err := json.Marshal(&overview); err == nil {
		s.cache.Set(ctx, key, string(raw), config.StatsTTL())
	}
	return &overview, nil
}

func percent(used, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(used) / float64(capacity) * 100
}
