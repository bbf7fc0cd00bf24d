// Package app wires the allocation engine together: settings, the
// database, the redis cache, the services and the background jobs.
// Everything downstream takes its collaborators as arguments, so this
// is the only place that knows the whole graph.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"ipatlas/internal/audit"
	"ipatlas/internal/cache"
	"ipatlas/internal/config"
	"ipatlas/internal/database"
	"ipatlas/internal/engine"
	"ipatlas/internal/identity"
	"ipatlas/internal/index"
	"ipatlas/internal/jobs/maintenance"
	"ipatlas/internal/jobs/runtime"
	"ipatlas/internal/lifecycle"
	"ipatlas/internal/quota"
	"ipatlas/internal/refmap"
	"ipatlas/internal/reservation"
	"ipatlas/internal/stats"
	"ipatlas/internal/support"
)

// Services bundles the constructed service graph for whoever embeds
// the engine, an API layer or an operator shell.
type Services struct {
	Engine       *engine.Engine
	Lifecycle    *lifecycle.Service
	Reservations *reservation.Manager
	Stats        *stats.Service
	Audit        *audit.Service
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(logLevel())
	config.ReadSettings()

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	redisClient, err := support.GetRedisClient()
	if err != nil {
		return fmt.Errorf("failed to get redis client: %w", err)
	}
	defer support.CloseRedisClient()

	c := cache.NewRedis(redisClient)
	services := BuildServices(db, c)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := runtime.NewRegistry(c)
	heartbeatCancel := registry.Launch(ctx)
	defer heartbeatCancel()

	sweepCancel := maintenance.LaunchReservationSweep(ctx, services.Reservations)
	defer sweepCancel()

	log.Info("Allocation engine started", "active_instances", registry.ActiveInstances(ctx))
	<-ctx.Done()
	log.Info("Shutting down")
	return nil
}

// BuildServices constructs the full service graph on top of an opened
// database and cache. Tests use it with sqlite and the in-memory
// cache.
func BuildServices(db *gorm.DB, c cache.Cache) *Services {
	recorder := audit.NewRecorder(identity.Static{})
	refMap := refmap.New(db, c)
	ledger := quota.NewLedger(db, c)
	idx := index.New(db, c)

	return &Services{
		Engine:       engine.New(db, refMap, ledger, idx, recorder),
		Lifecycle:    lifecycle.NewService(db, ledger, idx, recorder),
		Reservations: reservation.NewManager(db, refMap, ledger, idx, recorder),
		Stats:        stats.New(db, c, refMap),
		Audit:        audit.NewService(db),
	}
}

func logLevel() log.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
