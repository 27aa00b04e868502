package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE a=? AND b='?' AND c=?`
	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t, q, Rebind("", q))
	assert.Equal(t, `SELECT a FROM t WHERE a=$1 AND b='?' AND c=$2`, Rebind(DriverPostgres, q))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	conn, err := Open(Config{Driver: DriverSQLite, Path: path})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, path)
}

func TestOpenSQLiteMemoryIsPrivate(t *testing.T) {
	a, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Exec(`CREATE TABLE only_in_a(id INTEGER)`)
	require.NoError(t, err)
	_, err = b.Exec(`SELECT id FROM only_in_a`)
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(Config{Driver: DriverPostgres})
	assert.Error(t, err)
}
