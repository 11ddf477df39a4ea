package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

func TestNewPebbleDB_ExistingDirectory(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DBConfig{Path: baseDir}.WithDefaults()
	testDir := cfg.StorePath("alice@example.org")
	require.NoError(t, os.MkdirAll(testDir, 0o755))

	core, logs := observer.New(zap.InfoLevel)
	testLogger := zap.New(core)

	db, err := NewPebbleDB(testLogger, &cfg, "alice@example.org")
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	foundInfoLog := false
	for _, log := range logs.All() {
		if log.Message == "store found" {
			foundInfoLog = true
			assert.Equal(t, testDir, log.ContextMap()["path"])
			break
		}
	}
	assert.True(t, foundInfoLog, "Expected 'store found' info log")
}

func TestNewPebbleDB_NonExistingDirectory(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "nonexisting")
	cfg := config.DBConfig{Path: baseDir}.WithDefaults()
	testDir := cfg.StorePath("alice@example.org")

	core, logs := observer.New(zap.WarnLevel)
	testLogger := zap.New(core)

	db, err := NewPebbleDB(testLogger, &cfg, "alice@example.org")
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	_, err = os.Stat(testDir)
	assert.NoError(t, err, "Directory should have been created")

	foundWarnLog := false
	for _, log := range logs.All() {
		if log.Message == "store not found, creating" {
			foundWarnLog = true
			assert.Equal(t, testDir, log.ContextMap()["path"])
			break
		}
	}
	assert.True(t, foundWarnLog, "Expected 'store not found, creating' warning log")
}

func TestNewPebbleDB_InMemory(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "memory")
	cfg := &config.DBConfig{Path: baseDir, InMemoryDONOTUSE: true}

	db, err := NewPebbleDB(zap.NewNop(), cfg, "")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("k"), []byte("v")))

	_, err = os.Stat(baseDir)
	assert.True(t, os.IsNotExist(err), "In-memory store must not touch disk")
}

func TestPebbleDB_KV(t *testing.T) {
	db, err := NewPebbleDB(
		zap.NewNop(),
		&config.DBConfig{Path: ".test/store", InMemoryDONOTUSE: true},
		"",
	)
	require.NoError(t, err)
	defer db.Close()

	testKVDB(t, db)
}

// testKVDB checks the engine contract the collections rely on.
func testKVDB(t *testing.T, db store.KVDB) {
	t.Run("missing key", func(t *testing.T) {
		_, _, err := db.Get([]byte{0x10, 0x00})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, db.Set([]byte{0x10, 0x01}, []byte("one")))
		value, closer, err := db.Get([]byte{0x10, 0x01})
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), value)
		closer.Close()

		require.NoError(t, db.Delete([]byte{0x10, 0x01}))
		_, _, err = db.Get([]byte{0x10, 0x01})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("batch commit and abort", func(t *testing.T) {
		batch := db.NewBatch(false)
		require.NoError(t, batch.Set([]byte{0x11, 0x01}, []byte("a")))
		require.NoError(t, batch.Set([]byte{0x11, 0x02}, []byte("b")))
		require.NoError(t, batch.Commit())
		batch.Abort()

		aborted := db.NewBatch(false)
		require.NoError(t, aborted.Set([]byte{0x11, 0x03}, []byte("c")))
		require.NoError(t, aborted.Abort())

		_, _, err := db.Get([]byte{0x11, 0x03})
		assert.ErrorIs(t, err, store.ErrNotFound)
		value, closer, err := db.Get([]byte{0x11, 0x02})
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), value)
		closer.Close()
	})

	t.Run("bounded iteration", func(t *testing.T) {
		for _, k := range [][]byte{
			{0x12, 0x01},
			{0x12, 0x02, 0x00},
			{0x12, 0x03},
			{0x13},
		} {
			require.NoError(t, db.Set(k, []byte{0x01}))
		}

		iter, err := db.NewIter([]byte{0x12}, []byte{0x13})
		require.NoError(t, err)
		defer iter.Close()

		keys := [][]byte{}
		for valid := iter.First(); valid; valid = iter.Next() {
			keys = append(keys, append([]byte(nil), iter.Key()...))
		}
		assert.Equal(t, [][]byte{{0x12, 0x01}, {0x12, 0x02, 0x00}, {0x12, 0x03}}, keys)

		require.True(t, iter.Last())
		assert.Equal(t, []byte{0x12, 0x03}, iter.Key())
		require.True(t, iter.Prev())
		assert.Equal(t, []byte{0x12, 0x02, 0x00}, iter.Key())

		require.True(t, iter.SeekGE([]byte{0x12, 0x02}))
		assert.Equal(t, []byte{0x12, 0x02, 0x00}, iter.Key())
		require.True(t, iter.SeekLT([]byte{0x12, 0x02}))
		assert.Equal(t, []byte{0x12, 0x01}, iter.Key())
	})

	t.Run("delete range", func(t *testing.T) {
		require.NoError(t, db.DeleteRange([]byte{0x12}, []byte{0x13}))

		iter, err := db.NewIter([]byte{0x12}, []byte{0x14})
		require.NoError(t, err)
		defer iter.Close()

		require.True(t, iter.First())
		assert.Equal(t, []byte{0x13}, iter.Key())
		assert.False(t, iter.Next())
	})
}
