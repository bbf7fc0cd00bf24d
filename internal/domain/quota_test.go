package domain

import (
	"testing"
	"time"
)

func TestQuotaStatusFor(t *testing.T) {
	q := UserQuota{
		RegionQuota: 50,
		HostQuota:   1000,
		RegionCount: 40,
		HostCount:   1000,
	}

	region := q.StatusFor(QuotaRegion)
	if region.Current != 40 || region.Limit != 50 || region.Available != 10 {
		t.Errorf("region status = %+v, want 40/50 with 10 available", region)
	}
	if region.UsagePercent != 80 {
		t.Errorf("region usage = %.1f, want 80", region.UsagePercent)
	}

	host := q.StatusFor(QuotaHost)
	if host.Available != 0 {
		t.Errorf("host available = %d, want 0", host.Available)
	}
	if host.UsagePercent != 100 {
		t.Errorf("host usage = %.1f, want 100", host.UsagePercent)
	}
}

func TestQuotaStatusZeroLimit(t *testing.T) {
	q := UserQuota{}
	status := q.StatusFor(QuotaRegion)
	if status.UsagePercent != 0 || status.Available != 0 {
		t.Errorf("zero-limit status = %+v, want zeros", status)
	}
}

func TestReservationActiveAt(t *testing.T) {
	now := time.Now()

	active := Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(time.Hour)}
	if !active.ActiveAt(now) {
		t.Error("unexpired active reservation should be active")
	}

	expired := Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(-time.Minute)}
	if expired.ActiveAt(now) {
		t.Error("past expires_at should make the reservation inactive")
	}

	converted := Reservation{Status: ReservationStatusConverted, ExpiresAt: now.Add(time.Hour)}
	if converted.ActiveAt(now) {
		t.Error("converted reservation should be inactive")
	}
}
