package eventbus

import (
	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// Data keys used by plan events
const (
	KeyTime    = "time"
	KeyLevels  = "levels"
	KeyChannel = "channel"
	KeyChange  = "change"
)

// LevelsEvent builds an EventTypeLevels event
func LevelsEvent(at daycycle.TimeOfDay, levels map[string]plan.Level) Event {
	return Event{
		Type: EventTypeLevels,
		Data: map[string]any{
			KeyTime:   at,
			KeyLevels: levels,
		},
	}
}

// Levels extracts the payload of an EventTypeLevels event
func Levels(e Event) (daycycle.TimeOfDay, map[string]plan.Level, bool) {
	if e.Type != EventTypeLevels {
		return 0, nil, false
	}
	at, ok := e.Data[KeyTime].(daycycle.TimeOfDay)
	if !ok {
		return 0, nil, false
	}
	levels, ok := e.Data[KeyLevels].(map[string]plan.Level)
	return at, levels, ok
}

// PlanChangedEvent builds an EventTypePlanChanged event.
// channel is empty for plan-wide changes.
func PlanChangedEvent(channel, change string) Event {
	return Event{
		Type: EventTypePlanChanged,
		Data: map[string]any{
			KeyChannel: channel,
			KeyChange:  change,
		},
	}
}
