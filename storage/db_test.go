package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	value, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), buf))
	buf[0] = 'z'
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), value)
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := NewBoltDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestOpen(t *testing.T) {
	db, err := Open("", "")
	require.NoError(t, err)
	require.IsType(t, &MemDB{}, db)

	db, err = Open("BOLT", filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open("redis", "")
	require.Error(t, err)
}
