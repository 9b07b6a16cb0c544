package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/eventbus"
	"github.com/dokzlo13/dimplan/internal/ledger"
	"github.com/dokzlo13/dimplan/internal/plan"
	"github.com/dokzlo13/dimplan/internal/storage"
)

// PlanService is the single write path into the plan.
// Every edit is persisted first, then applied in memory, recorded in the
// ledger and announced on the bus. A failed edit changes nothing.
// Edits that would not change anything are not recorded or announced.
type PlanService struct {
	Plan   *plan.Plan
	store  *storage.PlanStore
	ledger *ledger.Ledger // nil when the ledger is disabled
	bus    *eventbus.Bus

	// serializes persist+apply so the store sees edits in order
	mu sync.Mutex
}

// NewPlanService creates a new PlanService.
func NewPlanService(p *plan.Plan, store *storage.PlanStore, l *ledger.Ledger, bus *eventbus.Bus) *PlanService {
	return &PlanService{Plan: p, store: store, ledger: l, bus: bus}
}

// Define sets a control point, creating the channel if needed.
func (s *PlanService) Define(id string, t daycycle.TimeOfDay, perc float64) error {
	if err := checkEdit(id, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := plan.ChannelConfiguration{ID: id}
	if ch, ok := s.Plan.Lookup(id); ok {
		current = ch.Configuration()
		if prev, ok := pointAt(current, t); ok && prev == perc {
			return nil
		}
	}

	if err := s.store.SaveChannel(withPoint(current, t, perc)); err != nil {
		return err
	}
	if err := s.Plan.Define(id, t, perc); err != nil {
		return err
	}
	s.record(ledger.EventPointDefined, id, map[string]any{"time": t.String(), "perc": perc})
	return nil
}

// Undefine removes a control point. Removing the last point deletes the
// stored channel; the empty channel stays in memory until restart.
func (s *PlanService) Undefine(id string, t daycycle.TimeOfDay) error {
	if err := checkEdit(id, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookup(id)
	if err != nil {
		return err
	}
	current := ch.Configuration()
	if _, ok := pointAt(current, t); !ok {
		return nil
	}

	candidate := withoutPoint(current, t)
	if len(candidate.Timetable) == 0 {
		err = s.store.DeleteChannel(id)
	} else {
		err = s.store.SaveChannel(candidate)
	}
	if err != nil {
		return err
	}
	if err := s.Plan.Undefine(id, t); err != nil {
		return err
	}
	s.record(ledger.EventPointUndefined, id, map[string]any{"time": t.String()})
	return nil
}

// Pin overrides a channel with a constant. Pins live in memory only.
func (s *PlanService) Pin(id string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookup(id)
	if err != nil {
		return err
	}
	if prev, ok := ch.Pinned(); ok && prev == v {
		return nil
	}
	ch.Pin(v)
	s.record(ledger.EventChannelPinned, id, map[string]any{"value": v})
	return nil
}

// Unpin clears a channel override.
func (s *PlanService) Unpin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookup(id)
	if err != nil {
		return err
	}
	if !ch.IsPinned() {
		return nil
	}
	ch.Unpin()
	s.record(ledger.EventChannelUnpinned, id, nil)
	return nil
}

// SetColor replaces the display color of an existing channel.
func (s *PlanService) SetColor(id, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookup(id)
	if err != nil {
		return err
	}
	current := ch.Configuration()
	if current.Color == color {
		return nil
	}

	current.Color = color
	if err := s.store.SaveChannel(current); err != nil {
		return err
	}
	ch.SetColor(color)
	s.record(ledger.EventChannelColored, id, map[string]any{"color": color})
	return nil
}

// Remove deletes a channel.
func (s *PlanService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(id); err != nil {
		return err
	}
	if err := s.store.DeleteChannel(id); err != nil {
		return err
	}
	s.Plan.Remove(id)
	s.record(ledger.EventChannelRemoved, id, nil)
	return nil
}

// Replace swaps the whole plan for cfg. The store is replaced in one
// transaction before the in-memory plan changes.
func (s *PlanService) Replace(cfg plan.Configuration) (plan.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, report, err := plan.Load(cfg)
	if err != nil {
		return plan.LoadReport{}, err
	}
	if err := s.store.Save(loaded.ToConfiguration()); err != nil {
		return plan.LoadReport{}, err
	}
	s.Plan.Adopt(loaded)
	s.record(ledger.EventPlanImported, "", map[string]any{
		"loaded":  len(report.Loaded),
		"skipped": report.Skipped,
	})
	return report, nil
}

// Restore loads the stored plan without recording or announcing anything.
func (s *PlanService) Restore() (plan.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.Load()
	if err != nil {
		return plan.LoadReport{}, err
	}
	return s.Plan.Replace(cfg)
}

func (s *PlanService) lookup(id string) (*plan.Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: channel id is required", plan.ErrInvalidArgument)
	}
	ch, ok := s.Plan.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", plan.ErrNotFound, id)
	}
	return ch, nil
}

func checkEdit(id string, t daycycle.TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("%w: time %s outside [00:00, 24:00)", plan.ErrInvalidArgument, t)
	}
	if id == "" {
		return fmt.Errorf("%w: channel id is required", plan.ErrInvalidArgument)
	}
	return nil
}

func pointAt(cc plan.ChannelConfiguration, t daycycle.TimeOfDay) (float64, bool) {
	for _, p := range cc.Timetable {
		if p.Time == t {
			return p.Perc, true
		}
	}
	return 0, false
}

// withPoint returns cc with perc at t, timetable kept in ascending order
func withPoint(cc plan.ChannelConfiguration, t daycycle.TimeOfDay, perc float64) plan.ChannelConfiguration {
	timetable := make([]plan.TimeValuePair, 0, len(cc.Timetable)+1)
	inserted := false
	for _, p := range cc.Timetable {
		switch {
		case p.Time == t:
			continue
		case !inserted && p.Time > t:
			timetable = append(timetable, plan.TimeValuePair{Time: t, Perc: perc})
			inserted = true
		}
		timetable = append(timetable, p)
	}
	if !inserted {
		timetable = append(timetable, plan.TimeValuePair{Time: t, Perc: perc})
	}
	cc.Timetable = timetable
	return cc
}

func withoutPoint(cc plan.ChannelConfiguration, t daycycle.TimeOfDay) plan.ChannelConfiguration {
	timetable := make([]plan.TimeValuePair, 0, len(cc.Timetable))
	for _, p := range cc.Timetable {
		if p.Time != t {
			timetable = append(timetable, p)
		}
	}
	cc.Timetable = timetable
	return cc
}

// record appends to the ledger and announces the change
func (s *PlanService) record(event ledger.EventType, channel string, payload map[string]any) {
	if s.ledger != nil {
		if _, err := s.ledger.Append(event, channel, payload); err != nil {
			log.Error().Err(err).Str("event", string(event)).Str("channel", channel).Msg("Failed to append ledger entry")
		}
	}

	log.Info().Str("event", string(event)).Str("channel", channel).Interface("payload", payload).Msg("Plan changed")
	s.bus.Publish(eventbus.PlanChangedEvent(channel, string(event)))
}
