package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PutGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	s, err := NewSQLiteStore(ctx, path, "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, ok, err := s.Get(ctx, "metricsLogs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "metricsLogs", "first"))
	require.NoError(t, s.Put(ctx, "metricsLogs", "first\nsecond"))

	v, ok, err := s.Get(ctx, "metricsLogs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first\nsecond", v, "last write wins")
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := NewSQLiteStore(ctx, path, "run-1")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path, "run-2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, StorageConfig{Driver: "memory"}, "run")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = openStore(ctx, StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "j.db")}, "run")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = openStore(ctx, StorageConfig{Driver: "redis"}, "run")
	require.ErrorContains(t, err, "unknown storage driver")
}
