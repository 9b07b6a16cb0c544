package plan

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/interp"
)

// Configuration is the persisted shape of a plan.
type Configuration struct {
	Channels []ChannelConfiguration `json:"channels" yaml:"channels"`
}

// ChannelConfiguration is the persisted shape of one channel.
type ChannelConfiguration struct {
	ID        string          `json:"id" yaml:"id"`
	Color     string          `json:"color,omitempty" yaml:"color,omitempty"`
	Timetable []TimeValuePair `json:"timetable" yaml:"timetable"`
}

// TimeValuePair is one timetable entry.
type TimeValuePair struct {
	Time daycycle.TimeOfDay `json:"time" yaml:"time"`
	Perc float64            `json:"perc" yaml:"perc"`
}

// LoadReport describes what Load did with the input.
type LoadReport struct {
	Loaded  []string `json:"loaded"`
	Skipped []string `json:"skipped"` // channels with an empty timetable
}

// Load builds a plan from cfg. Every loaded channel has its curve built.
// Channels with an empty timetable are skipped with a warning. A missing id
// or invalid time fails the whole load.
func Load(cfg Configuration) (*Plan, LoadReport, error) {
	var report LoadReport
	p := New()

	for i, cc := range cfg.Channels {
		if cc.ID == "" {
			return nil, LoadReport{}, fmt.Errorf("%w: channel #%d has no id", ErrInvalidArgument, i)
		}
		if len(cc.Timetable) == 0 {
			log.Warn().Str("channel", cc.ID).Msg("Skipping channel with empty timetable")
			report.Skipped = append(report.Skipped, cc.ID)
			continue
		}

		ch, err := NewChannelWithTimetable(cc.ID, cc.Color, cc.points())
		if err != nil {
			return nil, LoadReport{}, err
		}
		if _, dup := p.Lookup(cc.ID); dup {
			log.Warn().Str("channel", cc.ID).Msg("Duplicate channel id in configuration, last one wins")
		} else {
			report.Loaded = append(report.Loaded, cc.ID)
		}
		_ = p.Add(ch)
	}

	log.Debug().
		Int("loaded", len(report.Loaded)).
		Int("skipped", len(report.Skipped)).
		Msg("Plan loaded")

	return p, report, nil
}

// Replace swaps the contents of p for the channels in cfg.
// On error p is left untouched. Existing pins are discarded.
func (p *Plan) Replace(cfg Configuration) (LoadReport, error) {
	loaded, report, err := Load(cfg)
	if err != nil {
		return LoadReport{}, err
	}
	p.Adopt(loaded)
	return report, nil
}

// Adopt replaces the contents of p with the channels of other.
// other must not be used afterwards.
func (p *Plan) Adopt(other *Plan) {
	other.mu.Lock()
	channels, order, next := other.channels, other.order, other.next
	other.channels, other.order, other.next = make(map[string]*Channel), make(map[string]uint64), 0
	other.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = channels
	p.order = order
	p.next = next
}

// ToConfiguration exports every channel in plan order with its timetable in
// ascending time order. Pins are operational state and are not exported.
func (p *Plan) ToConfiguration() Configuration {
	channels := p.Channels()
	cfg := Configuration{Channels: make([]ChannelConfiguration, 0, len(channels))}
	for _, ch := range channels {
		cfg.Channels = append(cfg.Channels, ch.Configuration())
	}
	return cfg
}

// Configuration exports this channel.
func (c *Channel) Configuration() ChannelConfiguration {
	c.mu.Lock()
	defer c.mu.Unlock()

	points := c.timetableLocked()
	cc := ChannelConfiguration{
		ID:        c.id,
		Color:     c.color,
		Timetable: make([]TimeValuePair, 0, len(points)),
	}
	for _, pt := range points {
		cc.Timetable = append(cc.Timetable, TimeValuePair{Time: pt.At, Perc: pt.Value})
	}
	return cc
}

func (cc ChannelConfiguration) points() []interp.Point {
	points := make([]interp.Point, 0, len(cc.Timetable))
	for _, tv := range cc.Timetable {
		points = append(points, interp.Point{At: tv.Time, Value: tv.Perc})
	}
	return points
}
