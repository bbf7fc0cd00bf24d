// Package engine implements the allocation paths of the hierarchy:
// deterministic lowest-free coordinate search, single and batch host
// allocation and region allocation. There is no in-process lock; the
// unique indexes on the regions and hosts tables arbitrate races, and
// the loser of an insert race recomputes its coordinate and retries a
// bounded number of times.
package engine

import (
	"context"
	"time"

	"ipatlas/internal/audit"
	"ipatlas/internal/cache"
	"ipatlas/internal/config"
	"ipatlas/internal/index"
	"ipatlas/internal/quota"
	"ipatlas/internal/refmap"

	"gorm.io/gorm"
)

type Engine struct {
	db     *gorm.DB
	refMap *refmap.Map
	ledger *quota.Ledger
	index  *index.Index
	audit  *audit.Recorder
}

// New wires the engine. All collaborators are injected so tests can run
// against an in-memory store and cache.
func New(db *gorm.DB, refMap *refmap.Map, ledger *quota.Ledger, idx *index.Index, recorder *audit.Recorder) *Engine {
	return &Engine{
		db:     db,
		refMap: refMap,
		ledger: ledger,
		index:  idx,
		audit:  recorder,
	}
}

// Build assembles an engine plus its collaborators from a store and a
// cache, the common production wiring.
func Build(db *gorm.DB, c cache.Cache, recorder *audit.Recorder) *Engine {
	return New(db, refmap.New(db, c), quota.NewLedger(db, c), index.New(db, c), recorder)
}

// Ledger exposes the quota ledger the engine allocates against.
func (e *Engine) Ledger() *quota.Ledger {
	return e.ledger
}

// RefMap exposes the reference map used for country resolution.
func (e *Engine) RefMap() *refmap.Map {
	return e.refMap
}

// Index exposes the address index.
func (e *Engine) Index() *index.Index {
	return e.index
}

func maxRetries() int {
	retries := config.GetConfig().Allocation.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return retries
}

// backoff sleeps exponentially before retry attempt n (1-based wait:
// base, 2*base, 4*base, ...), honoring cancellation.
func backoff(ctx context.Context, attempt int) error {
	base := time.Duration(config.GetConfig().Allocation.RetryBackoffMs) * time.Millisecond
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	timer := time.NewTimer(base << (attempt - 1))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// smallestFree returns the lowest value in [min,max] absent from taken.
func smallestFree(taken map[uint8]struct{}, min, max int) (uint8, bool) {
	for v := min; v <= max; v++ {
		if _, used := taken[uint8(v)]; !used {
			return uint8(v), true
		}
	}
	return 0, false
}
