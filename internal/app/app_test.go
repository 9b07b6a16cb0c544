package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimplan/internal/config"
	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/eventbus"
	"github.com/dokzlo13/dimplan/internal/ledger"
	"github.com/dokzlo13/dimplan/internal/plan"
)

const delta = 0.001

var h = daycycle.Hour

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(dir, "dimplan.sqlite")
	return cfg
}

func newServices(t *testing.T, cfg *config.Config) *Services {
	t.Helper()
	s, err := NewServices(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func writePlanFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, config.WritePlan(path, plan.Configuration{Channels: []plan.ChannelConfiguration{
		{ID: "0x20", Color: "#000000", Timetable: []plan.TimeValuePair{{Time: h(6), Perc: 0}, {Time: h(8), Perc: 100}}},
	}}))
	return path
}

func TestPlanService_EditsArePersistedAndRecorded(t *testing.T) {
	s := newServices(t, testConfig(t, ""))

	changed := make(chan eventbus.Event, 10)
	s.Bus.Subscribe(eventbus.EventTypePlanChanged, func(e eventbus.Event) { changed <- e })

	require.NoError(t, s.Plan.Define("0x20", h(6), 0))
	require.NoError(t, s.Plan.Define("0x20", h(8), 100))
	require.NoError(t, s.Plan.Pin("0x20", 15))

	stored, err := s.Plans.Load()
	require.NoError(t, err)
	require.Len(t, stored.Channels, 1)
	assert.Len(t, stored.Channels[0].Timetable, 2)

	entries, err := s.Ledger.ByChannel("0x20", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	types := map[ledger.EventType]int{}
	for _, e := range entries {
		types[e.EventType]++
	}
	assert.Equal(t, 2, types[ledger.EventPointDefined])
	assert.Equal(t, 1, types[ledger.EventChannelPinned])

	for i := 0; i < 3; i++ {
		select {
		case e := <-changed:
			assert.Equal(t, "0x20", e.Data[eventbus.KeyChannel])
		case <-time.After(time.Second):
			t.Fatal("plan_changed event not delivered")
		}
	}
}

func TestPlanService_ErrorsDoNotRecord(t *testing.T) {
	s := newServices(t, testConfig(t, ""))

	assert.ErrorIs(t, s.Plan.Pin("ghost", 1), plan.ErrNotFound)
	assert.ErrorIs(t, s.Plan.Remove("ghost"), plan.ErrNotFound)
	assert.ErrorIs(t, s.Plan.Undefine("ghost", h(1)), plan.ErrNotFound)
	assert.ErrorIs(t, s.Plan.Define("x", daycycle.TimeOfDay(25*time.Hour), 1), plan.ErrInvalidArgument)

	entries, err := s.Ledger.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlanService_RemoveAndRestore(t *testing.T) {
	cfg := testConfig(t, "")
	s := newServices(t, cfg)

	require.NoError(t, s.Plan.Define("keep", h(6), 40))
	require.NoError(t, s.Plan.Define("drop", h(6), 60))
	require.NoError(t, s.Plan.Pin("keep", 99))
	require.NoError(t, s.Plan.Remove("drop"))

	// a fresh plan restored from the same database
	s.Plan.Plan.Remove("keep")
	report, err := s.Plan.Restore()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, report.Loaded)

	v, ok, err := s.Plan.Plan.Value("keep", h(12))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 40.0, v, delta, "pins are not persisted")
}

func TestServices_LoadPlanSeedsOnlyEmptyDatabase(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Plan.File = writePlanFile(t)

	s := newServices(t, cfg)
	require.NoError(t, s.LoadPlan())
	assert.Equal(t, []string{"0x20"}, s.Plan.Plan.IDs())

	// edits survive a restart because the file only seeds
	require.NoError(t, s.Plan.Define("0x20", h(7), 90))
	require.NoError(t, s.LoadPlan())
	v, _, err := s.Plan.Plan.Value("0x20", h(7))
	require.NoError(t, err)
	assert.InDelta(t, 90.0, v, delta)

	seed := false
	cfg.Plan.SeedFromFile = &seed
	require.NoError(t, s.LoadPlan())
	v, _, err = s.Plan.Plan.Value("0x20", h(7))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, v, delta)
}

func TestServices_LoadPlanMissingFile(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Plan.File = filepath.Join(t.TempDir(), "missing.yaml")

	s := newServices(t, cfg)
	assert.Error(t, s.LoadPlan())
}

func TestEvaluator_PublishesLevels(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	require.NoError(t, s.Plan.Define("0x20", h(6), 0))
	require.NoError(t, s.Plan.Define("0x20", h(8), 100))

	got := make(chan map[string]plan.Level, 1)
	s.Bus.Subscribe(eventbus.EventTypeLevels, func(e eventbus.Event) {
		_, levels, ok := eventbus.Levels(e)
		if ok {
			got <- levels
		}
	})

	loc := time.FixedZone("UTC+2", 2*60*60)
	clock := func() time.Time { return time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC) }
	ev := NewEvaluatorService(s.Plan.Plan, s.Bus, s.Metrics, time.Hour, loc, clock)

	at, levels := ev.Evaluate()
	assert.Equal(t, h(7), at)
	assert.InDelta(t, 50.0, levels["0x20"].Value, delta)

	select {
	case published := <-got:
		assert.InDelta(t, 50.0, published["0x20"].Value, delta)
	case <-time.After(time.Second):
		t.Fatal("levels event not delivered")
	}
}

func TestEvaluator_TriggeredByPlanChanges(t *testing.T) {
	s := newServices(t, testConfig(t, ""))

	got := make(chan map[string]plan.Level, 10)
	s.Bus.Subscribe(eventbus.EventTypeLevels, func(e eventbus.Event) {
		if _, levels, ok := eventbus.Levels(e); ok {
			got <- levels
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Evaluator.interval = time.Hour
	s.Evaluator.Start(ctx)

	// initial evaluation of the empty plan
	select {
	case levels := <-got:
		assert.Empty(t, levels)
	case <-time.After(time.Second):
		t.Fatal("no initial evaluation")
	}

	require.NoError(t, s.Plan.Define("0x20", h(6), 30))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case levels := <-got:
			if level, ok := levels["0x20"]; ok {
				assert.InDelta(t, 30.0, level.Value, delta)
				return
			}
		case <-deadline:
			t.Fatal("plan change did not trigger an evaluation")
		}
	}
}

func TestServices_StartWithScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "plan.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
		local plan = require("plan")
		plan.channel("lua"):define("00:00", 12)
	`), 0o644))

	cfg := testConfig(t, "")
	cfg.Script = script
	s := newServices(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, func(err error) { t.Error(err) }))

	v, ok, err := s.Plan.Plan.Value("lua", h(12))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 12.0, v, delta)

	stored, err := s.Plans.Load()
	require.NoError(t, err)
	require.Len(t, stored.Channels, 1)
	assert.Equal(t, "lua", stored.Channels[0].ID)
}

func TestServices_LedgerDisabled(t *testing.T) {
	cfg := testConfig(t, "ledger:\n  enabled: false\n")
	s := newServices(t, cfg)

	assert.Nil(t, s.Ledger)
	assert.Nil(t, s.Cleanup)
	require.NoError(t, s.Plan.Define("0x20", h(6), 1))
}

func TestPlanService_FailedPersistLeavesPlanUnchanged(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	require.NoError(t, s.Plan.Define("0x20", h(6), 0))
	require.NoError(t, s.Plan.Define("0x20", h(8), 100))
	before := s.Plan.Plan.ToConfiguration()

	require.NoError(t, s.DB.Close())

	assert.Error(t, s.Plan.Define("new", h(6), 40))
	_, ok := s.Plan.Plan.Lookup("new")
	assert.False(t, ok, "failed define must not create the channel")

	assert.Error(t, s.Plan.Define("0x20", h(8), 10))
	assert.Error(t, s.Plan.Define("0x20", h(12), 10))
	assert.Error(t, s.Plan.Undefine("0x20", h(6)))
	assert.Error(t, s.Plan.Remove("0x20"))
	_, err := s.Plan.Replace(plan.Configuration{Channels: []plan.ChannelConfiguration{
		{ID: "other", Timetable: []plan.TimeValuePair{{Time: h(1), Perc: 1}}},
	}})
	assert.Error(t, err)

	assert.Equal(t, before, s.Plan.Plan.ToConfiguration())
}

func TestPlanService_UnchangedEditsAreNotRecorded(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	require.NoError(t, s.Plan.Define("0x20", h(6), 30))
	require.NoError(t, s.Plan.Pin("0x20", 50))

	require.NoError(t, s.Plan.Define("0x20", h(6), 30))
	require.NoError(t, s.Plan.Pin("0x20", 50))
	require.NoError(t, s.Plan.Undefine("0x20", h(9)))
	require.NoError(t, s.Plan.Unpin("0x20"))
	require.NoError(t, s.Plan.Unpin("0x20"))

	entries, err := s.Ledger.ByChannel("0x20", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "define, pin and one unpin")
}

func TestPlanService_SetColor(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	require.NoError(t, s.Plan.Define("0x20", h(6), 30))

	require.NoError(t, s.Plan.SetColor("0x20", "#ff8800"))
	require.NoError(t, s.Plan.SetColor("0x20", "#ff8800"))
	assert.ErrorIs(t, s.Plan.SetColor("ghost", "#000000"), plan.ErrNotFound)

	ch, ok := s.Plan.Plan.Lookup("0x20")
	require.True(t, ok)
	assert.Equal(t, "#ff8800", ch.Color())

	stored, err := s.Plans.Load()
	require.NoError(t, err)
	require.Len(t, stored.Channels, 1)
	assert.Equal(t, "#ff8800", stored.Channels[0].Color)
	assert.Len(t, stored.Channels[0].Timetable, 1)

	entries, err := s.Ledger.ByChannel("0x20", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	types := []ledger.EventType{entries[0].EventType, entries[1].EventType}
	assert.ElementsMatch(t, []ledger.EventType{ledger.EventPointDefined, ledger.EventChannelColored}, types)
}

func TestPlanService_UndefineLastPointDeletesStoredChannel(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	require.NoError(t, s.Plan.Define("0x20", h(6), 30))
	require.NoError(t, s.Plan.Define("0x21", h(6), 30))

	require.NoError(t, s.Plan.Undefine("0x20", h(6)))

	stored, err := s.Plans.Load()
	require.NoError(t, err)
	require.Len(t, stored.Channels, 1)
	assert.Equal(t, "0x21", stored.Channels[0].ID)

	// still known in memory, without a value
	_, ok, err := s.Plan.Plan.Value("0x20", h(6))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlanService_UndefineChecksTimeFirst(t *testing.T) {
	s := newServices(t, testConfig(t, ""))
	err := s.Plan.Undefine("ghost", daycycle.TimeOfDay(25*time.Hour))
	assert.ErrorIs(t, err, plan.ErrInvalidArgument)
}

func TestServices_PinFromLevelsHookSettles(t *testing.T) {
	script := filepath.Join(t.TempDir(), "clamp.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
		local plan = require("plan")
		plan.channel("x"):define("00:00", 80)

		function on_levels(levels, time)
			local l = levels["x"]
			if l and l.value >= 50 then
				plan.pin("x", 50)
			end
		end
	`), 0o644))

	cfg := testConfig(t, "")
	cfg.Script = script
	s := newServices(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, func(err error) { t.Error(err) }))

	require.Eventually(t, func() bool {
		pinned, err := s.Plan.Plan.IsPinned("x")
		return err == nil && pinned
	}, 2*time.Second, 10*time.Millisecond)

	// the pin re-triggers one evaluation; the hook then pins the same value
	time.Sleep(300 * time.Millisecond)

	entries, err := s.Ledger.ByChannel("x", 100)
	require.NoError(t, err)
	pins := 0
	for _, e := range entries {
		if e.EventType == ledger.EventChannelPinned {
			pins++
		}
	}
	assert.Equal(t, 1, pins)
}
