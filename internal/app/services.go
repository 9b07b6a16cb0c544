package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/api"
	"github.com/dokzlo13/dimplan/internal/config"
	"github.com/dokzlo13/dimplan/internal/db"
	"github.com/dokzlo13/dimplan/internal/eventbus"
	"github.com/dokzlo13/dimplan/internal/ledger"
	"github.com/dokzlo13/dimplan/internal/metrics"
	"github.com/dokzlo13/dimplan/internal/plan"
	"github.com/dokzlo13/dimplan/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger // nil when disabled
	Store   *storage.Store
	Plans   *storage.PlanStore
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics

	// High-level services
	Plan      *PlanService
	Evaluator *EvaluatorService
	Hue       *HueService // nil when disabled
	Lua       *LuaService // nil without a script
	API       *APIService // nil when disabled
	Cleanup   *LedgerService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
		s.Cleanup = NewLedgerService(s.Ledger, cfg.Ledger.CleanupInterval.Duration(), cfg.Ledger.RetentionDays)
	}

	s.Store = storage.NewStore(database.DB)
	s.Plans = storage.NewPlanStore(s.Store)
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Metrics = metrics.New()

	p := plan.New()
	s.Plan = NewPlanService(p, s.Plans, s.Ledger, s.Bus)
	s.Evaluator = NewEvaluatorService(p, s.Bus, s.Metrics, cfg.Evaluator.Interval.Duration(), cfg.Evaluator.Location(), time.Now)
	s.Hue = NewHueService(cfg, s.Metrics)
	s.Lua = NewLuaService(cfg.Script, p, s.Plan, time.Now)

	if cfg.HTTP.Enabled {
		opts := api.Options{Metrics: s.Metrics, Location: cfg.Evaluator.Location()}
		if s.Ledger != nil {
			opts.History = s.Ledger
		}
		server := api.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, p, s.Plan, opts)
		s.API = NewAPIService(server, cfg.GetShutdownTimeout())
	}

	return s, nil
}

// LoadPlan restores the stored plan and applies the configured plan file.
func (s *Services) LoadPlan() error {
	report, err := s.Plan.Restore()
	if err != nil {
		return err
	}
	log.Info().Int("channels", len(report.Loaded)).Msg("Restored plan from database")

	file := s.cfg.Plan.File
	if file == "" {
		return nil
	}
	if s.cfg.Plan.IsSeedOnly() {
		empty, err := s.Plans.Empty()
		if err != nil {
			return err
		}
		if !empty {
			log.Debug().Str("file", file).Msg("Database already holds a plan, not seeding")
			return nil
		}
	}

	cfg, err := config.ReadPlan(file)
	if err != nil {
		return err
	}
	report, err = s.Plan.Replace(cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("file", file).
		Int("loaded", len(report.Loaded)).
		Strs("skipped", report.Skipped).
		Msg("Loaded plan file")
	return nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.LoadPlan(); err != nil {
		return err
	}

	// Load Lua script before starting worker
	if s.Lua != nil {
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		s.Lua.Start(ctx, s.Bus)
	}
	if s.Hue != nil {
		s.Hue.Start(ctx, s.Bus)
	}

	// Consumers are subscribed, so the first evaluation reaches them
	log.Debug().Int("consumers", s.Bus.Handlers(eventbus.EventTypeLevels)).Msg("Levels consumers subscribed")
	s.Evaluator.Start(ctx)

	if s.Cleanup != nil {
		s.Cleanup.Start(ctx)
	}
	if s.API != nil {
		s.API.Start(ctx, onFatalError)
	}

	return nil
}

// ClearState removes the stored plan.
func (s *Services) ClearState() error {
	return s.Plans.Clear()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
