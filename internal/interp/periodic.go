// Package interp provides linear interpolation over the daily cycle.
// The segment from the last control point of the day to the first control
// point of the next day is interpolated like any other segment, so the curve
// has no jump at midnight.
package interp

import (
	"sort"
	"time"

	"github.com/dokzlo13/dimplan/internal/daycycle"
)

// Point is a control point anchoring the curve.
type Point struct {
	At    daycycle.TimeOfDay `json:"time" yaml:"time"`
	Value float64            `json:"perc" yaml:"perc"`
}

// Periodic is an immutable piecewise linear function over one cycle.
// A nil *Periodic represents the absence of any control points.
type Periodic struct {
	points []Point // ascending by At, unique times
}

// NewPeriodic builds the interpolator for the given control points.
// Points need not be sorted. When several points share a time the last one
// wins. Returns nil when points is empty.
func NewPeriodic(points []Point) *Periodic {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At < sorted[j].At
	})

	// stable sort keeps input order among equal times; keep the last one
	unique := sorted[:0]
	for _, p := range sorted {
		if n := len(unique); n > 0 && unique[n-1].At == p.At {
			unique[n-1] = p
			continue
		}
		unique = append(unique, p)
	}

	return &Periodic{points: unique}
}

// Len returns the number of distinct control points.
func (f *Periodic) Len() int {
	if f == nil {
		return 0
	}
	return len(f.points)
}

// Points returns a copy of the control points in ascending time order.
func (f *Periodic) Points() []Point {
	if f == nil {
		return nil
	}
	out := make([]Point, len(f.points))
	copy(out, f.points)
	return out
}

// Value evaluates the curve at t. Offsets outside the cycle are wrapped.
// Calling Value on a nil *Periodic panics; callers check for absence first.
func (f *Periodic) Value(t daycycle.TimeOfDay) float64 {
	pts := f.points
	if len(pts) == 1 {
		return pts[0].Value
	}

	t = daycycle.Wrap(t.Duration())

	// first index with At >= t
	i := sort.Search(len(pts), func(i int) bool { return pts[i].At >= t })
	if i < len(pts) && pts[i].At == t {
		return pts[i].Value
	}

	var lo, hi Point
	switch i {
	case 0, len(pts):
		// before the first or after the last point: wrap segment
		lo, hi = pts[len(pts)-1], pts[0]
	default:
		lo, hi = pts[i-1], pts[i]
	}

	return lerp(lo, hi, t)
}

// lerp interpolates between lo and hi with deltas measured forward around the cycle.
func lerp(lo, hi Point, t daycycle.TimeOfDay) float64 {
	span := lo.At.Until(hi.At)
	if span == 0 {
		return lo.Value
	}
	offset := lo.At.Until(t)
	return lo.Value + (hi.Value-lo.Value)*fraction(offset, span)
}

func fraction(offset, span time.Duration) float64 {
	return float64(offset) / float64(span)
}
