package domain

import "time"

// QuotaKind selects which counter of a UserQuota an operation touches.
type QuotaKind string

const (
	QuotaRegion QuotaKind = "region"
	QuotaHost   QuotaKind = "host"
)

// UserQuota tracks how many regions and hosts a user namespace holds
// against its limits. Rows are created lazily on first quota check and
// never deleted. Counters are only ever mutated through guarded SQL
// increments so region_count <= region_quota and host_count <= host_quota
// hold at every observable point.
type UserQuota struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	RegionQuota int64     `gorm:"not null"`
	HostQuota   int64     `gorm:"not null"`
	RegionCount int64     `gorm:"not null;default:0"`
	HostCount   int64     `gorm:"not null;default:0"`
	LastUpdated time.Time `gorm:"autoUpdateTime"`
}

// QuotaStatus is the snapshot returned by a quota check.
type QuotaStatus struct {
	Kind         QuotaKind `json:"kind"`
	Current      int64     `json:"current"`
	Limit        int64     `json:"limit"`
	Available    int64     `json:"available"`
	UsagePercent float64   `json:"usage_percent"`
}

// StatusFor builds the QuotaStatus view for one counter.
func (q *UserQuota) StatusFor(kind QuotaKind) QuotaStatus {
	current, limit := q.RegionCount, q.RegionQuota
	if kind == QuotaHost {
		current, limit = q.HostCount, q.HostQuota
	}

	available := limit - current
	if available < 0 {
		available = 0
	}

	percent := 0.0
	if limit > 0 {
		percent = float64(current) / float64(limit) * 100
	}

	return QuotaStatus{
		Kind:         kind,
		Current:      current,
		Limit:        limit,
		Available:    available,
		UsagePercent: percent,
	}
}
