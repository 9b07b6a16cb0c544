// Package hue drives Philips Hue lights and groups from evaluated channel levels.
package hue

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/plan"
)

// Bridge is the part of *huego.Bridge the sink needs.
type Bridge interface {
	SetLightState(id int, state huego.State) (*huego.Response, error)
	SetGroupState(id int, state huego.State) (*huego.Response, error)
}

// Observer is told about every bridge call.
type Observer func(kind string, err error)

// Target is a light or group driven by one channel.
type Target struct {
	Kind string // "light" or "group"
	ID   int
}

func (t Target) String() string {
	return t.Kind + "/" + strconv.Itoa(t.ID)
}

// Sink maps channels onto Hue targets and pushes brightness changes.
type Sink struct {
	bridge     Bridge
	targets    map[string][]Target
	transition uint16
	observe    Observer

	mu   sync.Mutex
	last map[Target]huego.State
}

// NewSink creates a sink. lights and groups map channel ids to Hue ids.
func NewSink(bridge Bridge, lights, groups map[string][]int, transition uint16, observe Observer) *Sink {
	targets := make(map[string][]Target)
	for channel, ids := range lights {
		for _, id := range ids {
			targets[channel] = append(targets[channel], Target{Kind: "light", ID: id})
		}
	}
	for channel, ids := range groups {
		for _, id := range ids {
			targets[channel] = append(targets[channel], Target{Kind: "group", ID: id})
		}
	}

	return &Sink{
		bridge:     bridge,
		targets:    targets,
		transition: transition,
		observe:    observe,
		last:       make(map[Target]huego.State),
	}
}

// Connect opens a huego bridge connection
func Connect(address, token string) *huego.Bridge {
	return huego.New(address, token)
}

// Channels returns the mapped channel ids, sorted
func (s *Sink) Channels() []string {
	ids := make([]string, 0, len(s.targets))
	for id := range s.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply pushes levels to their targets.
// Channels without a value leave their lights untouched. Unchanged states are not resent.
func (s *Sink) Apply(levels map[string]plan.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed int
	for _, channel := range s.Channels() {
		level, ok := levels[channel]
		if !ok || !level.OK {
			continue
		}

		state := StateFor(level.Value)
		for _, target := range s.targets[channel] {
			if prev, seen := s.last[target]; seen && prev.On == state.On && prev.Bri == state.Bri {
				continue
			}

			if err := s.send(target, state); err != nil {
				failed++
				log.Error().Err(err).
					Str("channel", channel).
					Str("target", target.String()).
					Msg("Failed to apply level")
				continue
			}
			s.last[target] = state

			log.Debug().
				Str("channel", channel).
				Str("target", target.String()).
				Bool("on", state.On).
				Uint8("bri", state.Bri).
				Msg("Applied level")
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to apply %d hue updates", failed)
	}
	return nil
}

func (s *Sink) send(target Target, state huego.State) error {
	state.TransitionTime = s.transition

	var err error
	switch target.Kind {
	case "group":
		_, err = s.bridge.SetGroupState(target.ID, state)
	default:
		_, err = s.bridge.SetLightState(target.ID, state)
	}

	if s.observe != nil {
		s.observe(target.Kind, err)
	}
	return err
}

// StateFor converts a percentage to a Hue state.
// Zero and below turn the light off; anything above maps onto bri 1..254.
func StateFor(perc float64) huego.State {
	if perc <= 0 {
		return huego.State{On: false}
	}
	if perc > 100 {
		perc = 100
	}
	bri := math.Round(perc / 100 * 254)
	if bri < 1 {
		bri = 1
	}
	return huego.State{On: true, Bri: uint8(bri)}
}
