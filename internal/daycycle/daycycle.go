// Package daycycle models the fixed 24 hour cycle a dimming plan repeats over.
// A TimeOfDay is an offset from midnight in [0, CycleLength).
package daycycle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CycleLength is the duration of one full cycle.
const CycleLength = 24 * time.Hour

var (
	// ErrOutOfRange is returned for offsets outside [0, CycleLength).
	ErrOutOfRange = errors.New("time of day out of range")
	// ErrInvalidFormat is returned when a clock string cannot be parsed.
	ErrInvalidFormat = errors.New("invalid time of day format")
)

// Match "06:30", "6:30", "22:15:05", "22:15:05.250"
var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2})(\.\d{1,9})?)?$`)

// TimeOfDay is an offset within the daily cycle with nanosecond precision.
type TimeOfDay time.Duration

// Midnight is the start of the cycle.
const Midnight TimeOfDay = 0

// New builds a TimeOfDay from clock components.
func New(hour, min, sec int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: hour %d", ErrOutOfRange, hour)
	}
	if min < 0 || min > 59 {
		return 0, fmt.Errorf("%w: minute %d", ErrOutOfRange, min)
	}
	if sec < 0 || sec > 59 {
		return 0, fmt.Errorf("%w: second %d", ErrOutOfRange, sec)
	}
	d := time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
	return TimeOfDay(d), nil
}

// MustNew is New for constants and tests. It panics on invalid components.
func MustNew(hour, min, sec int) TimeOfDay {
	t, err := New(hour, min, sec)
	if err != nil {
		panic(err)
	}
	return t
}

// Hour is shorthand for MustNew(hour, 0, 0).
func Hour(hour int) TimeOfDay {
	return MustNew(hour, 0, 0)
}

// FromDuration validates an offset from midnight.
func FromDuration(d time.Duration) (TimeOfDay, error) {
	t := TimeOfDay(d)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d)
	}
	return t, nil
}

// Wrap maps any duration onto the cycle. The result is always valid.
func Wrap(d time.Duration) TimeOfDay {
	d %= CycleLength
	if d < 0 {
		d += CycleLength
	}
	return TimeOfDay(d)
}

// Of returns the wall clock offset of t in t's location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
	return TimeOfDay(d)
}

// Parse parses "HH:MM", "HH:MM:SS" or "HH:MM:SS.fraction".
func Parse(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)

	matches := clockPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	hour, _ := strconv.Atoi(matches[1])
	min, _ := strconv.Atoi(matches[2])
	sec := 0
	if matches[3] != "" {
		sec, _ = strconv.Atoi(matches[3])
	}

	t, err := New(hour, min, sec)
	if err != nil {
		return 0, err
	}

	if frac := matches[4]; frac != "" {
		// pad ".25" to ".250000000" so the digits read as nanoseconds
		digits := frac[1:] + strings.Repeat("0", 9-len(frac[1:]))
		nanos, _ := strconv.Atoi(digits)
		t += TimeOfDay(nanos)
	}

	return t, nil
}

// Valid reports whether t lies in [0, CycleLength).
func (t TimeOfDay) Valid() bool {
	return t >= 0 && time.Duration(t) < CycleLength
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t)
}

// Until returns the forward distance from t to u, wrapping past midnight.
// Until(t, t) is zero.
func (t TimeOfDay) Until(u TimeOfDay) time.Duration {
	return time.Duration(Wrap(time.Duration(u) - time.Duration(t)))
}

// String formats t as HH:MM, HH:MM:SS or HH:MM:SS.fraction, whichever is exact.
func (t TimeOfDay) String() string {
	if !t.Valid() {
		return fmt.Sprintf("invalid(%s)", time.Duration(t))
	}

	d := time.Duration(t)
	hour := d / time.Hour
	d -= hour * time.Hour
	min := d / time.Minute
	d -= min * time.Minute
	sec := d / time.Second
	nanos := d - sec*time.Second

	switch {
	case nanos != 0:
		frac := strings.TrimRight(fmt.Sprintf("%09d", int64(nanos)), "0")
		return fmt.Sprintf("%02d:%02d:%02d.%s", hour, min, sec, frac)
	case sec != 0:
		return fmt.Sprintf("%02d:%02d:%02d", hour, min, sec)
	default:
		return fmt.Sprintf("%02d:%02d", hour, min)
	}
}

// MarshalText implements encoding.TextMarshaler (used by encoding/json).
func (t TimeOfDay) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, time.Duration(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, time.Duration(t))
	}
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for TimeOfDay
func (t *TimeOfDay) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}
