package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/config"
	"github.com/dokzlo13/dimplan/internal/eventbus"
	"github.com/dokzlo13/dimplan/internal/hue"
	"github.com/dokzlo13/dimplan/internal/metrics"
)

// HueService forwards evaluated levels to the Hue bridge.
type HueService struct {
	Sink *hue.Sink
}

// NewHueService creates a new HueService, or nil when Hue output is disabled.
func NewHueService(cfg *config.Config, m *metrics.Metrics) *HueService {
	if !cfg.Hue.Enabled {
		return nil
	}

	var observe hue.Observer
	if m != nil {
		observe = m.ObserveHueUpdate
	}

	bridge := hue.Connect(cfg.Hue.Bridge, cfg.Hue.Token)
	return &HueService{
		Sink: hue.NewSink(bridge, cfg.Hue.Lights, cfg.Hue.Groups, cfg.Hue.TransitionTime, observe),
	}
}

// Start subscribes the sink to levels events.
func (s *HueService) Start(ctx context.Context, bus *eventbus.Bus) {
	log.Info().Strs("channels", s.Sink.Channels()).Msg("Hue output enabled")

	bus.Subscribe(eventbus.EventTypeLevels, func(e eventbus.Event) {
		if ctx.Err() != nil {
			return
		}
		_, levels, ok := eventbus.Levels(e)
		if !ok {
			return
		}
		if err := s.Sink.Apply(levels); err != nil {
			log.Warn().Err(err).Msg("Hue update incomplete")
		}
	})
}
