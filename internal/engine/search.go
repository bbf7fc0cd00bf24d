package engine

import (
	"context"

	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"github.com/charmbracelet/log"
)

// FindNextRegionCoordinate walks the country's X range in ascending
// order and returns the lowest free (X,Y) pair. Y values held by active
// region-level reservations count as taken. The result is best-effort
// under concurrency: two callers may get the same pair, and the unique
// index decides who keeps it.
func (e *Engine) FindNextRegionCoordinate(ctx context.Context, userID, country string) (uint8, uint8, error) {
	mapping, err := e.refMap.Lookup(ctx, country)
	if err != nil {
		return 0, 0, err
	}

	warnPercent := config.GetConfig().Allocation.CapacityWarnPercent
	totalTaken := 0

	for x := int(mapping.XStart); x <= int(mapping.XEnd); x++ {
		allocated, err := e.index.AllocatedY(ctx, userID, uint8(x))
		if err != nil {
			return 0, 0, err
		}

		if warnPercent > 0 && len(allocated)*100 >= warnPercent*domain.YValuesPerX {
			log.Warn("X block nearing capacity",
				"user", userID,
				"country", country,
				"x", x,
				"allocated", len(allocated),
				"capacity", domain.YValuesPerX)
		}

		reserved, err := e.index.ReservedY(ctx, userID, uint8(x))
		if err != nil {
			return 0, 0, err
		}

		taken := make(map[uint8]struct{}, len(allocated)+len(reserved))
		for y := range allocated {
			taken[y] = struct{}{}
		}
		for y := range reserved {
			taken[y] = struct{}{}
		}
		// Reserved Y values block allocation just like allocated ones,
		// so the exhaustion figure counts both.
		totalTaken += len(taken)

		if y, ok := smallestFree(taken, 0, domain.YValuesPerX-1); ok {
			return uint8(x), y, nil
		}
	}

	return 0, 0, faults.CapacityExhausted("region", mapping.RegionCapacity(), totalTaken)
}

// FindNextHostCoordinate returns the lowest free Z in [1,254] for a
// region. The allocated set is read fresh from the store on every call;
// host churn is too high for a cached set to pay off.
func (e *Engine) FindNextHostCoordinate(ctx context.Context, userID string, region *domain.Region) (uint8, error) {
	allocated, err := e.index.AllocatedZ(ctx, userID, region.ID)
	if err != nil {
		return 0, err
	}
	if len(allocated) >= domain.HostsPerRegion {
		return 0, faults.CapacityExhausted("host", domain.HostsPerRegion, domain.HostsPerRegion)
	}

	reserved, err := e.index.ReservedZ(ctx, userID, region.XOctet, region.YOctet)
	if err != nil {
		return 0, err
	}

	taken := make(map[uint8]struct{}, len(allocated)+len(reserved))
	for z := range allocated {
		taken[z] = struct{}{}
	}
	for z := range reserved {
		taken[z] = struct{}{}
	}

	z, ok := smallestFree(taken, domain.MinZOctet, domain.MaxZOctet)
	if !ok {
		return 0, faults.CapacityExhausted("host", domain.HostsPerRegion, len(taken))
	}
	return z, nil
}
