package refmap

import (
	"context"
	"fmt"
	"testing"

	"ipatlas/internal/cache"
	"ipatlas/internal/database"
	"ipatlas/internal/faults"

	"gorm.io/driver/sqlite"
)

func setupRefMapTest(t *testing.T) (*Map, *cache.Memory) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
	)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	mem := cache.NewMemory()
	return New(db, mem), mem
}

func TestLookup(t *testing.T) {
	refMap, mem := setupRefMapTest(t)
	ctx := context.Background()

	mapping, err := refMap.Lookup(ctx, "India")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if mapping.XStart != 10 || mapping.XEnd != 39 {
		t.Errorf("India range = [%d,%d], want [10,39]", mapping.XStart, mapping.XEnd)
	}
	if mapping.Continent != "Asia" {
		t.Errorf("India continent = %q, want Asia", mapping.Continent)
	}
	if mem.Len() == 0 {
		t.Error("expected the mapping to be cached")
	}
}

func TestLookupUnknownCountry(t *testing.T) {
	refMap, _ := setupRefMapTest(t)

	_, err := refMap.Lookup(context.Background(), "Atlantis")
	if !faults.IsCode(err, faults.CodeCountryNotFound) {
		t.Fatalf("Lookup(Atlantis) = %v, want COUNTRY_NOT_FOUND", err)
	}
}

func TestLookupByX(t *testing.T) {
	refMap, _ := setupRefMapTest(t)
	ctx := context.Background()

	mapping, err := refMap.LookupByX(ctx, 25)
	if err != nil {
		t.Fatalf("LookupByX: %v", err)
	}
	if mapping.Country != "India" {
		t.Errorf("X=25 maps to %q, want India", mapping.Country)
	}

	// X values 0-9 are deliberately unmapped.
	if _, err := refMap.LookupByX(ctx, 5); !faults.IsCode(err, faults.CodeCountryNotFound) {
		t.Fatalf("LookupByX(5) = %v, want COUNTRY_NOT_FOUND", err)
	}
}

func TestListAllByContinent(t *testing.T) {
	refMap, _ := setupRefMapTest(t)
	ctx := context.Background()

	asia, err := refMap.ListAll(ctx, "Asia")
	if err != nil {
		t.Fatalf("ListAll(Asia): %v", err)
	}
	if len(asia) == 0 {
		t.Fatal("expected Asian mappings")
	}
	for _, m := range asia {
		if m.Continent != "Asia" {
			t.Errorf("mapping %q has continent %q, want Asia", m.Country, m.Continent)
		}
	}

	all, err := refMap.ListAll(ctx, "")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) <= len(asia) {
		t.Errorf("unfiltered list has %d entries, want more than Asia's %d", len(all), len(asia))
	}
}

func TestMappingsDoNotOverlap(t *testing.T) {
	refMap, _ := setupRefMapTest(t)

	all, err := refMap.ListAll(context.Background(), "")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if cur.XStart <= prev.XEnd {
			t.Errorf("%s [%d,%d] overlaps %s [%d,%d]",
				cur.Country, cur.XStart, cur.XEnd, prev.Country, prev.XStart, prev.XEnd)
		}
	}
}
