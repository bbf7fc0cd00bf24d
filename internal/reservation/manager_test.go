package reservation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ipatlas/internal/audit"
	"ipatlas/internal/cache"
	"ipatlas/internal/database"
	"ipatlas/internal/domain"
	"ipatlas/internal/engine"
	"ipatlas/internal/faults"
	"ipatlas/internal/identity"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupReservationTest(t *testing.T) (*Manager, *engine.Engine, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
	)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	mem := cache.NewMemory()
	recorder := audit.NewRecorder(identity.Static{})
	eng := engine.Build(db, mem, recorder)
	mgr := NewManager(db, eng.RefMap(), eng.Ledger(), eng.Index(), recorder)
	return mgr, eng, db
}

func reserveRegion(t *testing.T, mgr *Manager, userID string, x, y uint8) *domain.Reservation {
	t.Helper()

	res, err := mgr.Create(context.Background(), CreateRequest{
		UserID:       userID,
		ResourceType: domain.ResourceRegion,
		XOctet:       x,
		YOctet:       y,
		Reason:       "future capacity",
	})
	if err != nil {
		t.Fatalf("Create region reservation: %v", err)
	}
	return res
}

func TestCreateRegionReservation(t *testing.T) {
	mgr, _, db := setupReservationTest(t)

	res := reserveRegion(t, mgr, "alice", 10, 0)

	if res.ID == "" {
		t.Error("reservation should have a generated id")
	}
	if res.Status != domain.ReservationStatusActive {
		t.Errorf("status = %q, want active", res.Status)
	}
	if !res.ExpiresAt.After(time.Now()) {
		t.Error("expiry should be in the future")
	}

	var events int64
	err := db.Model(&domain.AuditEvent{}).
		Where("resource_type = ? AND action_type = ?", domain.ResourceReservation, domain.ActionReserve).
		Count(&events).Error
	if err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if events != 1 {
		t.Errorf("reserve events = %d, want 1", events)
	}
}

func TestCreateReservationValidation(t *testing.T) {
	mgr, _, _ := setupReservationTest(t)
	ctx := context.Background()

	z := uint8(5)
	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"region with z", CreateRequest{UserID: "a", ResourceType: domain.ResourceRegion, XOctet: 10, ZOctet: &z, Reason: "r"}},
		{"host without z", CreateRequest{UserID: "a", ResourceType: domain.ResourceHost, XOctet: 10, Reason: "r"}},
		{"unknown type", CreateRequest{UserID: "a", ResourceType: "subnet", XOctet: 10, Reason: "r"}},
		{"missing reason", CreateRequest{UserID: "a", ResourceType: domain.ResourceRegion, XOctet: 10}},
		{"expiry too long", CreateRequest{UserID: "a", ResourceType: domain.ResourceRegion, XOctet: 10, Reason: "r", ExpiresIn: 91}},
	}

	for _, tc := range cases {
		if _, err := mgr.Create(ctx, tc.req); !faults.IsCode(err, faults.CodeValidation) {
			t.Errorf("%s: got %v, want VALIDATION_ERROR", tc.name, err)
		}
	}

	// Unmapped X octets cannot be reserved.
	_, err := mgr.Create(ctx, CreateRequest{
		UserID: "a", ResourceType: domain.ResourceRegion, XOctet: 5, Reason: "r",
	})
	if !faults.IsCode(err, faults.CodeCountryNotFound) {
		t.Fatalf("unmapped X = %v, want COUNTRY_NOT_FOUND", err)
	}
}

func TestCreateReservationConflicts(t *testing.T) {
	mgr, eng, _ := setupReservationTest(t)
	ctx := context.Background()

	alloc, err := eng.AllocateRegion(ctx, engine.RegionRequest{
		UserID: "alice", Country: "India", RegionName: "dc1",
	})
	if err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	// The allocated (X,Y) cannot be reserved.
	_, err = mgr.Create(ctx, CreateRequest{
		UserID:       "alice",
		ResourceType: domain.ResourceRegion,
		XOctet:       alloc.Region.XOctet,
		YOctet:       alloc.Region.YOctet,
		Reason:       "too late",
	})
	if !faults.IsCode(err, faults.CodeDuplicateAllocation) {
		t.Fatalf("reserve allocated block = %v, want DUPLICATE_ALLOCATION", err)
	}

	// Nor can a coordinate be held twice.
	reserveRegion(t, mgr, "alice", 10, 9)
	_, err = mgr.Create(ctx, CreateRequest{
		UserID:       "alice",
		ResourceType: domain.ResourceRegion,
		XOctet:       10,
		YOctet:       9,
		Reason:       "second hold",
	})
	if !faults.IsCode(err, faults.CodeDuplicateAllocation) {
		t.Fatalf("double reserve = %v, want DUPLICATE_ALLOCATION", err)
	}
}

func TestConvertRegionReservation(t *testing.T) {
	mgr, _, db := setupReservationTest(t)
	ctx := context.Background()

	res := reserveRegion(t, mgr, "alice", 10, 3)

	result, err := mgr.Convert(ctx, "alice", res.ID, ConvertRequest{Name: "mumbai-dc1"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Region == nil {
		t.Fatal("expected a region result")
	}
	if result.Region.XOctet != 10 || result.Region.YOctet != 3 {
		t.Errorf("converted region at (%d,%d), want the reserved (10,3)",
			result.Region.XOctet, result.Region.YOctet)
	}
	if result.Region.Country != "India" {
		t.Errorf("country = %q, want India from the X mapping", result.Region.Country)
	}
	if result.Quota.Current != 1 {
		t.Errorf("region quota current = %d, want 1", result.Quota.Current)
	}

	var stored domain.Reservation
	if err := db.First(&stored, "id = ?", res.ID).Error; err != nil {
		t.Fatalf("reload reservation: %v", err)
	}
	if stored.Status != domain.ReservationStatusConverted {
		t.Errorf("reservation status = %q, want converted", stored.Status)
	}

	var events int64
	err = db.Model(&domain.AuditEvent{}).
		Where("action_type = ? AND resource_type = ?", domain.ActionConvertReservation, domain.ResourceRegion).
		Count(&events).Error
	if err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if events != 1 {
		t.Errorf("convert events = %d, want 1", events)
	}

	// A second conversion of the same hold must fail.
	if _, err := mgr.Convert(ctx, "alice", res.ID, ConvertRequest{Name: "again"}); !faults.IsCode(err, faults.CodeValidation) {
		t.Fatalf("re-convert = %v, want VALIDATION_ERROR", err)
	}
}

func TestConvertHostReservation(t *testing.T) {
	mgr, eng, _ := setupReservationTest(t)
	ctx := context.Background()

	region, err := eng.AllocateRegion(ctx, engine.RegionRequest{
		UserID: "alice", Country: "India", RegionName: "dc1",
	})
	if err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	z := uint8(5)
	res, err := mgr.Create(ctx, CreateRequest{
		UserID:       "alice",
		ResourceType: domain.ResourceHost,
		XOctet:       region.Region.XOctet,
		YOctet:       region.Region.YOctet,
		ZOctet:       &z,
		Reason:       "printer address",
	})
	if err != nil {
		t.Fatalf("Create host reservation: %v", err)
	}

	// The held address is blocked for direct allocation.
	_, err = eng.AllocateHost(ctx, engine.HostRequest{
		UserID: "alice", RegionID: region.Region.ID, Hostname: "squatter", RequestedZ: &z,
	})
	if !faults.IsCode(err, faults.CodeDuplicateAllocation) {
		t.Fatalf("allocate reserved address = %v, want DUPLICATE_ALLOCATION", err)
	}

	result, err := mgr.Convert(ctx, "alice", res.ID, ConvertRequest{Name: "printer-1", DeviceType: "printer"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Host == nil {
		t.Fatal("expected a host result")
	}
	if result.Host.ZOctet != 5 {
		t.Errorf("converted host Z = %d, want the reserved 5", result.Host.ZOctet)
	}
	if result.Host.Address != domain.HostAddress(region.Region.XOctet, region.Region.YOctet, 5) {
		t.Errorf("address = %q, want the reserved coordinate's address", result.Host.Address)
	}
	if result.Host.RegionID != region.Region.ID {
		t.Errorf("region id = %d, want %d", result.Host.RegionID, region.Region.ID)
	}
}

func TestConvertExpiredReservation(t *testing.T) {
	mgr, _, db := setupReservationTest(t)
	ctx := context.Background()

	res := reserveRegion(t, mgr, "alice", 10, 3)

	err := db.Model(&domain.Reservation{}).Where("id = ?", res.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error
	if err != nil {
		t.Fatalf("backdate reservation: %v", err)
	}

	_, err = mgr.Convert(ctx, "alice", res.ID, ConvertRequest{Name: "too-late"})
	if !faults.IsCode(err, faults.CodeValidation) {
		t.Fatalf("convert expired = %v, want VALIDATION_ERROR", err)
	}
}

func TestConvertCrossUser(t *testing.T) {
	mgr, _, _ := setupReservationTest(t)

	res := reserveRegion(t, mgr, "alice", 10, 3)

	_, err := mgr.Convert(context.Background(), "bob", res.ID, ConvertRequest{Name: "theft"})
	if !faults.IsCode(err, faults.CodeNotFound) {
		t.Fatalf("foreign conversion = %v, want NOT_FOUND", err)
	}
}

func TestDeleteReservationFreesCoordinate(t *testing.T) {
	mgr, eng, db := setupReservationTest(t)
	ctx := context.Background()

	res := reserveRegion(t, mgr, "alice", 10, 0)

	if err := mgr.Delete(ctx, "alice", res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var events int64
	err := db.Model(&domain.AuditEvent{}).
		Where("resource_type = ? AND resource_id = ? AND action_type = ?",
			domain.ResourceReservation, res.ID, domain.ActionRelease).
		Count(&events).Error
	if err != nil {
		t.Fatalf("count release events: %v", err)
	}
	if events != 1 {
		t.Errorf("release events = %d, want 1 (cancellation must leave a trail)", events)
	}

	alloc, err := eng.AllocateRegion(ctx, engine.RegionRequest{
		UserID: "alice", Country: "India", RegionName: "dc1",
	})
	if err != nil {
		t.Fatalf("AllocateRegion after delete: %v", err)
	}
	if alloc.Region.XOctet != 10 || alloc.Region.YOctet != 0 {
		t.Errorf("allocated (%d,%d), the deleted hold should free (10,0)",
			alloc.Region.XOctet, alloc.Region.YOctet)
	}
}

func TestSweepExpired(t *testing.T) {
	mgr, _, db := setupReservationTest(t)
	ctx := context.Background()

	live := reserveRegion(t, mgr, "alice", 10, 0)
	stale := reserveRegion(t, mgr, "alice", 10, 1)

	err := db.Model(&domain.Reservation{}).Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error
	if err != nil {
		t.Fatalf("backdate reservation: %v", err)
	}

	swept, err := mgr.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	statuses := make(map[string]string)
	var rows []domain.Reservation
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	for _, r := range rows {
		statuses[r.ID] = r.Status
	}
	if statuses[live.ID] != domain.ReservationStatusActive {
		t.Errorf("live reservation status = %q, want active", statuses[live.ID])
	}
	if statuses[stale.ID] != domain.ReservationStatusExpired {
		t.Errorf("stale reservation status = %q, want expired", statuses[stale.ID])
	}
}
