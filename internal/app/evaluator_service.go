package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/eventbus"
	"github.com/dokzlo13/dimplan/internal/metrics"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// EvaluatorService evaluates every channel on a fixed interval and on demand,
// publishing the result as a levels event.
type EvaluatorService struct {
	plan     *plan.Plan
	bus      *eventbus.Bus
	metrics  *metrics.Metrics
	interval time.Duration
	location *time.Location
	clock    func() time.Time

	trigger chan struct{}
}

// NewEvaluatorService creates a new EvaluatorService.
func NewEvaluatorService(
	p *plan.Plan,
	bus *eventbus.Bus,
	m *metrics.Metrics,
	interval time.Duration,
	location *time.Location,
	clock func() time.Time,
) *EvaluatorService {
	if clock == nil {
		clock = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &EvaluatorService{
		plan:     p,
		bus:      bus,
		metrics:  m,
		interval: interval,
		location: location,
		clock:    clock,
		trigger:  make(chan struct{}, 1),
	}
}

// Start evaluates immediately, then on every tick and trigger until ctx is done.
func (s *EvaluatorService) Start(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypePlanChanged, func(eventbus.Event) {
		s.Trigger()
	})

	log.Info().Dur("interval", s.interval).Str("timezone", s.location.String()).Msg("Starting evaluator")
	go s.run(ctx)
}

// Trigger requests an evaluation. Requests coalesce while one is pending.
func (s *EvaluatorService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *EvaluatorService) run(ctx context.Context) {
	s.Evaluate()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evaluate()
		case <-s.trigger:
			s.Evaluate()
		}
	}
}

// Evaluate computes all levels for the current time of day and publishes them.
func (s *EvaluatorService) Evaluate() (daycycle.TimeOfDay, map[string]plan.Level) {
	at := daycycle.Of(s.clock().In(s.location))

	levels, err := s.plan.Values(at)
	if err != nil {
		log.Error().Err(err).Str("time", at.String()).Msg("Evaluation failed")
		return at, nil
	}

	if s.metrics != nil {
		s.metrics.ObserveLevels(levels)
	}
	log.Debug().Str("time", at.String()).Int("channels", len(levels)).Msg("Plan evaluated")

	s.bus.Publish(eventbus.LevelsEvent(at, levels))
	return at, levels
}
