package config

import (
	"sync/atomic"
	"time"
)

const defaultSweepInterval = time.Hour

var sweepInterval atomic.Value

func init() {
	sweepInterval.Store(defaultSweepInterval)
}

// CalculateBetweenTime converts a Timer into a duration, enforcing a
// one second minimum.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

// GetSweepInterval returns the cadence of the reservation expiry sweep.
func GetSweepInterval() time.Duration {
	return sweepInterval.Load().(time.Duration)
}

func setSweepInterval(cfg Config) {
	timer := cfg.Reservation.SweepTimer
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		sweepInterval.Store(defaultSweepInterval)
		return
	}
	sweepInterval.Store(CalculateBetweenTime(timer))
}

// IndexTTL is the lifetime of a cached per-(user,X) allocated-Y set.
func IndexTTL() time.Duration {
	return secondsOr(GetConfig().Cache.IndexTTLSecs, 60*time.Second)
}

// QuotaTTL is the lifetime of a cached quota document.
func QuotaTTL() time.Duration {
	return secondsOr(GetConfig().Cache.QuotaTTLSecs, 60*time.Second)
}

// RefMapTTL is the lifetime of a cached country mapping.
func RefMapTTL() time.Duration {
	return secondsOr(GetConfig().Cache.RefMapTTLSecs, 24*time.Hour)
}

// StatsTTL is the lifetime of a cached utilization snapshot.
func StatsTTL() time.Duration {
	return secondsOr(GetConfig().Cache.StatsTTLSecs, 30*time.Second)
}

// SingleOpTimeout bounds one allocate/update/retire call.
func SingleOpTimeout() time.Duration {
	return secondsOr(GetConfig().Allocation.SingleTimeoutSecs, 30*time.Second)
}

// BatchOpTimeout bounds one batch allocate/release call.
func BatchOpTimeout() time.Duration {
	return secondsOr(GetConfig().Allocation.BatchTimeoutSecs, 60*time.Second)
}

func secondsOr(secs uint32, fallback time.Duration) time.Duration {
	if secs == 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
