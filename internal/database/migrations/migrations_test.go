package migrations

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func openMemory(t *testing.T) *sql.DB {
	db, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestRunner_UpAndDown(t *testing.T) {
	db := openMemory(t)
	r := NewRunner(db, "sqlite", nil)

	require.NoError(t, r.MigrateUp())
	for _, table := range []string{"events", "visitors", "users", "payments"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	v, dirty, err := r.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	// second run is a no-op
	require.NoError(t, r.MigrateUp())

	require.NoError(t, r.MigrateDown())
	assert.False(t, tableExists(t, db, "visitors"))
}

func TestRunner_OpenTicketIndex(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, NewRunner(db, "sqlite", nil).MigrateUp())

	_, err := db.Exec(`INSERT INTO events (date, max_capacity) VALUES ('2025-06-01', 10)`)
	require.NoError(t, err)

	insert := `INSERT INTO visitors (user_id, event_date, redemption_code, is_used) VALUES (?, '2025-06-01', ?, ?)`
	_, err = db.Exec(insert, 1, "code-a", false)
	require.NoError(t, err)

	_, err = db.Exec(insert, 1, "code-b", false)
	assert.Error(t, err, "second open ticket for the same pair must be rejected")

	_, err = db.Exec(`UPDATE visitors SET is_used = ? WHERE redemption_code = 'code-a'`, true)
	require.NoError(t, err)

	_, err = db.Exec(insert, 1, "code-b", false)
	assert.NoError(t, err, "a redeemed ticket no longer blocks the pair")
}

func TestRunner_UnknownDialect(t *testing.T) {
	r := NewRunner(openMemory(t), "oracle", nil)
	assert.ErrorContains(t, r.MigrateUp(), "unsupported")
}
