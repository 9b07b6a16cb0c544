package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesTablesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimplan.sqlite")

	d, err := Open(path)
	require.NoError(t, err)
	_, err = d.Exec(`INSERT INTO resource_state (kind, id, payload, updated_at) VALUES ('channel', '0x20', '{}', 1)`)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()

	for _, table := range []string{"event_ledger", "resource_state"} {
		var name string
		err := d.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var count int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM resource_state`).Scan(&count))
	assert.Equal(t, 1, count)
}
