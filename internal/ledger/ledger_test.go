package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimplan/internal/db"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

// clock returns a fake time source that advances a second per call
func clock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestLedger_AppendAndRecent(t *testing.T) {
	l := newLedger(t)
	l.now = clock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	id, err := l.Append(EventPointDefined, "0x20", map[string]any{"time": "06:00", "perc": 40.0})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	_, err = l.Append(EventChannelPinned, "0x20", map[string]any{"value": 10.0})
	require.NoError(t, err)
	_, err = l.Append(EventPlanImported, "", nil)
	require.NoError(t, err)

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EventPlanImported, entries[0].EventType)
	assert.Empty(t, entries[0].Channel)
	assert.Nil(t, entries[0].Payload)

	assert.Equal(t, EventPointDefined, entries[2].EventType)
	assert.Equal(t, id, entries[2].ID)
	assert.Equal(t, "06:00", entries[2].Payload["time"])
	assert.Equal(t, 40.0, entries[2].Payload["perc"])

	limited, err := l.Recent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLedger_ByChannel(t *testing.T) {
	l := newLedger(t)
	l.now = clock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	for _, ch := range []string{"a", "b", "a"} {
		_, err := l.Append(EventPointUndefined, ch, nil)
		require.NoError(t, err)
	}

	entries, err := l.ByChannel("a", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "a", e.Channel)
	}
}

func TestLedger_Cleanup(t *testing.T) {
	l := newLedger(t)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return start.Add(-48 * time.Hour) }
	_, err := l.Append(EventChannelRemoved, "old", nil)
	require.NoError(t, err)

	l.now = func() time.Time { return start }
	_, err = l.Append(EventChannelRemoved, "new", nil)
	require.NoError(t, err)

	removed, err := l.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Channel)
}
