package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ipatlas/internal/cache"
	"ipatlas/internal/database"
	"ipatlas/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupIndexTest(t *testing.T) (*Index, *gorm.DB, *cache.Memory) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
		database.WithMigrations(domain.Region{}, domain.Host{}, domain.Reservation{}),
		database.WithSeedCountries(false),
	)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	mem := cache.NewMemory()
	return New(db, mem), db, mem
}

func createRegion(t *testing.T, db *gorm.DB, userID string, x, y uint8) domain.Region {
	t.Helper()

	region := domain.Region{
		UserID:     userID,
		XOctet:     x,
		YOctet:     y,
		Country:    "India",
		Continent:  "Asia",
		RegionName: fmt.Sprintf("r-%d-%d", x, y),
	}
	if err := db.Create(&region).Error; err != nil {
		t.Fatalf("create region: %v", err)
	}
	return region
}

func TestAllocatedY(t *testing.T) {
	idx, db, mem := setupIndexTest(t)
	ctx := context.Background()

	createRegion(t, db, "alice", 10, 0)
	createRegion(t, db, "alice", 10, 7)
	createRegion(t, db, "alice", 11, 0)
	createRegion(t, db, "bob", 10, 3)

	got, err := idx.AllocatedY(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("AllocatedY: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AllocatedY returned %d values, want 2", len(got))
	}
	for _, y := range []uint8{0, 7} {
		if _, ok := got[y]; !ok {
			t.Errorf("expected Y=%d in the set", y)
		}
	}
	if mem.Len() == 0 {
		t.Error("expected the Y set to be cached")
	}
}

func TestAllocatedYCacheStaleness(t *testing.T) {
	idx, db, _ := setupIndexTest(t)
	ctx := context.Background()

	createRegion(t, db, "alice", 10, 0)
	if _, err := idx.AllocatedY(ctx, "alice", 10); err != nil {
		t.Fatalf("AllocatedY: %v", err)
	}

	// A write that bypasses InvalidateY is invisible until the cache
	// entry is dropped.
	createRegion(t, db, "alice", 10, 1)

	got, err := idx.AllocatedY(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("AllocatedY: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("cached set has %d values, want the stale 1", len(got))
	}

	idx.InvalidateY(ctx, "alice", 10)
	got, err = idx.AllocatedY(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("AllocatedY after invalidate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("fresh set has %d values, want 2", len(got))
	}
}

func TestAllocatedZ(t *testing.T) {
	idx, db, _ := setupIndexTest(t)
	ctx := context.Background()

	region := createRegion(t, db, "alice", 10, 0)
	for _, z := range []uint8{1, 2, 9} {
		host := domain.Host{
			UserID:   "alice",
			RegionID: region.ID,
			XOctet:   10,
			YOctet:   0,
			ZOctet:   z,
			Hostname: fmt.Sprintf("h-%d", z),
		}
		if err := db.Create(&host).Error; err != nil {
			t.Fatalf("create host: %v", err)
		}
	}

	got, err := idx.AllocatedZ(ctx, "alice", region.ID)
	if err != nil {
		t.Fatalf("AllocatedZ: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("AllocatedZ returned %d values, want 3", len(got))
	}
}

func TestReservedExcludesExpired(t *testing.T) {
	idx, db, _ := setupIndexTest(t)
	ctx := context.Background()

	live := domain.Reservation{
		UserID:       "alice",
		ResourceType: domain.ResourceRegion,
		XOctet:       10,
		YOctet:       4,
		Reason:       "future capacity",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	stale := domain.Reservation{
		UserID:       "alice",
		ResourceType: domain.ResourceRegion,
		XOctet:       10,
		YOctet:       5,
		Reason:       "lapsed hold",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}
	if err := db.Create(&live).Error; err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	got, err := idx.ReservedY(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ReservedY: %v", err)
	}
	if _, ok := got[4]; !ok {
		t.Error("live reservation should block Y=4")
	}
	if _, ok := got[5]; ok {
		t.Error("expired reservation should not block Y=5")
	}
}

func TestReservedAt(t *testing.T) {
	idx, db, _ := setupIndexTest(t)
	ctx := context.Background()

	z := uint8(5)
	res := domain.Reservation{
		UserID:       "alice",
		ResourceType: domain.ResourceHost,
		XOctet:       10,
		YOctet:       0,
		ZOctet:       &z,
		Reason:       "printer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.Create(&res).Error; err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	held, err := idx.ReservedAt(ctx, "alice", 10, 0, &z, "")
	if err != nil {
		t.Fatalf("ReservedAt: %v", err)
	}
	if !held {
		t.Error("expected the host-level hold to be reported")
	}

	held, err = idx.ReservedAt(ctx, "alice", 10, 0, nil, "")
	if err != nil {
		t.Fatalf("ReservedAt: %v", err)
	}
	if held {
		t.Error("a host-level hold should not match a region-level probe")
	}

	held, err = idx.ReservedAt(ctx, "alice", 10, 0, &z, res.ID)
	if err != nil {
		t.Fatalf("ReservedAt: %v", err)
	}
	if held {
		t.Error("excluding the holding reservation should report free")
	}
}
