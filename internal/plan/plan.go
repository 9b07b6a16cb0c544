// Package plan implements the dimming plan: a directory of named channels,
// each carrying a daily timetable that is interpolated around the clock.
package plan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dokzlo13/dimplan/internal/daycycle"
)

// Level is the evaluated output of one channel at one time of day.
type Level struct {
	Value  float64 `json:"value"`
	OK     bool    `json:"ok"` // false when the channel has no value
	Pinned bool    `json:"pinned"`
}

// Plan owns a set of channels keyed by id. It is safe for concurrent use.
// Listing methods return channels in the order they were first added.
type Plan struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    map[string]uint64
	next     uint64
}

// New creates an empty plan.
func New() *Plan {
	return &Plan{
		channels: make(map[string]*Channel),
		order:    make(map[string]uint64),
	}
}

// Channel returns the channel for id, creating an empty one if absent.
func (p *Plan) Channel(id string) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}

	p.mu.RLock()
	ch, ok := p.channels[id]
	p.mu.RUnlock()
	if ok {
		return ch, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.channels[id]; ok {
		return ch, nil
	}
	ch, err := NewChannel(id, "")
	if err != nil {
		return nil, err
	}
	p.putLocked(ch)
	return ch, nil
}

// Lookup returns the channel for id without creating it.
func (p *Plan) Lookup(id string) (*Channel, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[id]
	return ch, ok
}

// Add inserts ch, replacing any channel with the same id. A replaced
// channel keeps its position.
func (p *Plan) Add(ch *Channel) error {
	if ch == nil || ch.ID() == "" {
		return fmt.Errorf("%w: channel with id is required", ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.putLocked(ch)
	return nil
}

func (p *Plan) putLocked(ch *Channel) {
	if _, ok := p.order[ch.ID()]; !ok {
		p.order[ch.ID()] = p.next
		p.next++
	}
	p.channels[ch.ID()] = ch
}

// Remove deletes the channel for id. It reports whether a channel was removed.
func (p *Plan) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.channels[id]; !ok {
		return false
	}
	delete(p.channels, id)
	delete(p.order, id)
	return true
}

// RebuildAll rebuilds every channel's curve. Use after a batch of edits.
func (p *Plan) RebuildAll() {
	for _, ch := range p.Channels() {
		ch.Rebuild()
	}
}

// IDs returns the channel ids.
func (p *Plan) IDs() []string {
	channels := p.Channels()
	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID()
	}
	return ids
}

// Len returns the number of channels.
func (p *Plan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.channels)
}

// Channels returns the channels.
func (p *Plan) Channels() []*Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		return p.order[out[i].ID()] < p.order[out[j].ID()]
	})
	return out
}

// Define sets a control point on channel id, creating the channel if needed.
// The channel is not created when t is invalid.
func (p *Plan) Define(id string, t daycycle.TimeOfDay, perc float64) error {
	if err := checkTime(t); err != nil {
		return err
	}
	ch, err := p.Channel(id)
	if err != nil {
		return err
	}
	return ch.Define(t, perc)
}

// Undefine removes a control point from channel id.
// An invalid time is reported before an unknown id.
func (p *Plan) Undefine(id string, t daycycle.TimeOfDay) error {
	if err := checkTime(t); err != nil {
		return err
	}
	ch, err := p.lookup(id)
	if err != nil {
		return err
	}
	return ch.Undefine(t)
}

// Value returns the percentage of channel id at t.
// It returns ErrNotFound for an unknown id and ok == false for a channel
// without a value. It never creates a channel.
func (p *Plan) Value(id string, t daycycle.TimeOfDay) (value float64, ok bool, err error) {
	ch, err := p.lookup(id)
	if err != nil {
		return 0, false, err
	}
	return ch.Value(t)
}

// Values evaluates every channel at t.
func (p *Plan) Values(t daycycle.TimeOfDay) (map[string]Level, error) {
	if err := checkTime(t); err != nil {
		return nil, err
	}

	channels := p.Channels()
	levels := make(map[string]Level, len(channels))
	for _, ch := range channels {
		v, ok, err := ch.Value(t)
		if err != nil {
			return nil, err
		}
		levels[ch.ID()] = Level{Value: v, OK: ok, Pinned: ch.IsPinned()}
	}
	return levels, nil
}

// Pin pins channel id to v.
func (p *Plan) Pin(id string, v float64) error {
	ch, err := p.lookup(id)
	if err != nil {
		return err
	}
	ch.Pin(v)
	return nil
}

// Unpin clears the pin on channel id.
func (p *Plan) Unpin(id string) error {
	ch, err := p.lookup(id)
	if err != nil {
		return err
	}
	ch.Unpin()
	return nil
}

// IsPinned reports whether channel id is pinned.
func (p *Plan) IsPinned(id string) (bool, error) {
	ch, err := p.lookup(id)
	if err != nil {
		return false, err
	}
	return ch.IsPinned(), nil
}

func (p *Plan) lookup(id string) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	ch, ok := p.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return ch, nil
}
