// Package maintenance holds periodic hygiene jobs. They only tidy
// state that the allocation path already treats as inactive, so a
// missed run never changes behavior.
package maintenance

import (
	"context"
	"time"

	"ipatlas/internal/config"
	"ipatlas/internal/reservation"

	"github.com/charmbracelet/log"
)

const sweepTimeout = 30 * time.Second

// StartReservationSweep periodically flips reservations whose
// expires_at has passed to a terminal status. The interval follows the
// settings file and is re-read every tick so config updates apply
// without a restart.
func StartReservationSweep(ctx context.Context, manager *reservation.Manager) {
	if ctx == nil {
		ctx = context.Background()
	}

	runSweep(ctx, manager)

	timer := time.NewTimer(config.GetSweepInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			runSweep(ctx, manager)
			timer.Reset(config.GetSweepInterval())
		}
	}
}

func runSweep(ctx context.Context, manager *reservation.Manager) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	swept, err := manager.SweepExpired(sweepCtx)
	if err != nil {
		log.Error("Reservation sweep failed", "error", err)
		return
	}
	if swept > 0 {
		log.Info("Expired reservations swept", "count", swept)
	}
}

// LaunchReservationSweep runs the sweep on its own goroutine and
// returns the cancel that stops it.
func LaunchReservationSweep(parent context.Context, manager *reservation.Manager) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartReservationSweep(ctx, manager)
	return cancel
}
