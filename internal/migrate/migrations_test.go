package migrate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksms/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "tasks.db")})
	require.NoError(t, err)
	defer conn.Close()

	v1, err := Migrate(conn, db.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := Migrate(conn, db.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	for _, table := range []string{"t_task", "t_lookup_value", "t_history"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestLoadMigrationsPerDialect(t *testing.T) {
	for _, driver := range []string{db.DriverSQLite, db.DriverPostgres} {
		ms, err := loadMigrations(driver)
		require.NoError(t, err, driver)
		require.NotEmpty(t, ms, driver)
		assert.Equal(t, 1, ms[0].Version)
	}
	_, err := loadMigrations("mysql")
	assert.Error(t, err)
}
