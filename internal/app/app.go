// Package app wires the dimplan daemon together.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/config"
)

// App owns the daemon's services from construction to shutdown.
type App struct {
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New builds every service from cfg. Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{services: services}, nil
}

// Start loads the plan and launches the background services under ctx.
// A fatal service error cancels the app, which releases Wait.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, initiating shutdown")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		return err
	}

	log.Info().Int("channels", a.services.Plan.Plan.Len()).Msg("dimplan started")
	return nil
}

// Stop cancels the background services and releases the bus, Lua state and database.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}
	return a.services.Stop()
}

// Wait returns once the app context is done.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// ClearPlan deletes the stored plan so the plan file seeds it again.
func (a *App) ClearPlan() error {
	if a.services == nil {
		return nil
	}
	return a.services.ClearState()
}

// SignalContext returns a context cancelled by SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
