package plan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/interp"
)

// State describes whether a channel's cached curve reflects its timetable.
type State int

const (
	StateEmpty State = iota // no control points
	StateStale              // timetable changed since the last rebuild
	StateFresh              // curve matches the timetable
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStale:
		return "stale"
	case StateFresh:
		return "fresh"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Channel is one independently scheduled output: a timetable of control
// points, the curve derived from it, and an optional pinned value.
//
// The curve is rebuilt lazily: Define and Undefine mark the channel stale and
// the next Value call rebuilds before answering. Rebuild does the same work
// eagerly. All methods are safe for concurrent use.
type Channel struct {
	mu sync.Mutex

	id    string
	color string

	timetable map[daycycle.TimeOfDay]float64
	curve     *interp.Periodic
	stale     bool

	pinned *float64
}

// NewChannel creates an empty, unpinned channel.
func NewChannel(id, color string) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	return &Channel{
		id:        id,
		color:     color,
		timetable: make(map[daycycle.TimeOfDay]float64),
	}, nil
}

// NewChannelWithTimetable creates a channel pre-populated with points and
// its curve already built. Nothing is created if any point is invalid.
func NewChannelWithTimetable(id, color string, points []interp.Point) (*Channel, error) {
	ch, err := NewChannel(id, color)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if err := checkTime(p.At); err != nil {
			return nil, fmt.Errorf("channel %q: %w", id, err)
		}
		ch.timetable[p.At] = p.Value
	}
	ch.rebuildLocked()
	return ch, nil
}

// ID returns the channel identifier.
func (c *Channel) ID() string {
	return c.id
}

// Color returns the display color. It is opaque to the plan.
func (c *Channel) Color() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// SetColor replaces the display color.
func (c *Channel) SetColor(color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = color
}

// Define sets the percentage at t, replacing any existing point at t.
func (c *Channel) Define(t daycycle.TimeOfDay, perc float64) error {
	if err := checkTime(t); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.timetable[t] = perc
	c.stale = true
	return nil
}

// Undefine removes the point at exactly t. Removing an absent point is a no-op.
func (c *Channel) Undefine(t daycycle.TimeOfDay) error {
	if err := checkTime(t); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.timetable[t]; !ok {
		return nil
	}
	delete(c.timetable, t)
	c.stale = true
	return nil
}

// Value returns the percentage at t. A pinned channel returns its pin.
// ok is false when the channel is unpinned and has no control points.
func (c *Channel) Value(t daycycle.TimeOfDay) (value float64, ok bool, err error) {
	if err := checkTime(t); err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pinned != nil {
		return *c.pinned, true, nil
	}
	if len(c.timetable) == 0 {
		return 0, false, nil
	}
	if c.stale || c.curve == nil {
		c.rebuildLocked()
	}
	return c.curve.Value(t), true, nil
}

// Pin forces every query to return v until Unpin is called.
func (c *Channel) Pin(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = &v
}

// Unpin clears the pin. Queries fall back to the curve.
func (c *Channel) Unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = nil
}

// IsPinned reports whether a pin is set.
func (c *Channel) IsPinned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned != nil
}

// Pinned returns the pinned value, if any.
func (c *Channel) Pinned() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned == nil {
		return 0, false
	}
	return *c.pinned, true
}

// Rebuild recomputes the curve from the current timetable. It is idempotent.
func (c *Channel) Rebuild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale || (c.curve == nil && len(c.timetable) > 0) {
		c.rebuildLocked()
	}
}

// State reports the cache state of the curve.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case len(c.timetable) == 0:
		return StateEmpty
	case c.stale || c.curve == nil:
		return StateStale
	default:
		return StateFresh
	}
}

// Len returns the number of control points.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timetable)
}

// Timetable returns the control points in ascending time order.
func (c *Channel) Timetable() []interp.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timetableLocked()
}

// timetableLocked reuses the built curve's sorted points when fresh
func (c *Channel) timetableLocked() []interp.Point {
	if !c.stale && c.curve != nil {
		return c.curve.Points()
	}
	return c.pointsLocked()
}

func (c *Channel) pointsLocked() []interp.Point {
	points := make([]interp.Point, 0, len(c.timetable))
	for at, v := range c.timetable {
		points = append(points, interp.Point{At: at, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].At < points[j].At })
	return points
}

func (c *Channel) rebuildLocked() {
	c.curve = interp.NewPeriodic(c.pointsLocked())
	c.stale = false
}

func checkTime(t daycycle.TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("%w: time %s outside [00:00, 24:00)", ErrInvalidArgument, t)
	}
	return nil
}
