package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/plan"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewWithConfig(2, 10)
	defer bus.Close(context.Background())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []string

	for _, name := range []string{"a", "b"} {
		name := name
		bus.Subscribe(EventTypePlanChanged, func(e Event) {
			defer wg.Done()
			mu.Lock()
			got = append(got, name+":"+e.Data[KeyChannel].(string))
			mu.Unlock()
		})
	}
	if n := bus.Handlers(EventTypePlanChanged); n != 2 {
		t.Fatalf("Handlers() = %d, want 2", n)
	}

	wg.Add(2)
	bus.Publish(PlanChangedEvent("0x20", "pin"))
	wg.Wait()

	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2: %v", len(got), got)
	}
}

func TestBus_UnsubscribedTypeIsIgnored(t *testing.T) {
	bus := New()
	defer bus.Close(context.Background())

	called := make(chan struct{}, 1)
	bus.Subscribe(EventTypeLevels, func(Event) { called <- struct{}{} })
	bus.Publish(PlanChangedEvent("", "import"))

	select {
	case <-called:
		t.Fatal("handler for another type was invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_HandlerPanicDoesNotKillWorker(t *testing.T) {
	bus := NewWithConfig(1, 10)
	defer bus.Close(context.Background())

	done := make(chan struct{})
	first := true
	bus.Subscribe(EventTypeLevels, func(Event) {
		if first {
			first = false
			panic("boom")
		}
		close(done)
	})

	bus.Publish(LevelsEvent(daycycle.Hour(7), nil))
	bus.Publish(LevelsEvent(daycycle.Hour(8), nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive handler panic")
	}
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	bus := NewWithConfig(1, 1)
	bus.Subscribe(EventTypeLevels, func(Event) {})
	bus.Close(context.Background())
	bus.Close(context.Background())

	// must not panic
	bus.Publish(LevelsEvent(daycycle.Hour(1), nil))
}

func TestLevelsEvent(t *testing.T) {
	levels := map[string]plan.Level{"0x20": {Value: 50, OK: true}}
	e := LevelsEvent(daycycle.Hour(7), levels)

	at, got, ok := Levels(e)
	if !ok {
		t.Fatal("Levels() ok = false")
	}
	if at != daycycle.Hour(7) {
		t.Errorf("time = %s, want 07:00", at)
	}
	if got["0x20"].Value != 50 {
		t.Errorf("level = %v, want 50", got["0x20"].Value)
	}

	if _, _, ok := Levels(PlanChangedEvent("x", "pin")); ok {
		t.Error("Levels() accepted a plan_changed event")
	}
}
