package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	c, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Set(NamespaceAnswers, "key", []byte(`{"answer":"ok"}`), time.Hour))

	data, ok, err := c.Get(NamespaceAnswers, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"answer":"ok"}`), data)
}

func TestDiskCacheMiss(t *testing.T) {
	c, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	_, ok, err := c.Get(NamespaceAnswers, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskCacheExpiredEntryIsRemoved(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir)
	require.NoError(t, err)

	// Write an envelope whose expiry is already in the past; Set treats a
	// non-positive TTL as durable, so the file is planted directly.
	past := time.Now().Add(-time.Minute).Unix()
	entry, err := json.Marshal(diskEntry{ExpiresAt: past, Value: []byte("old")})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, NamespaceAnswers), 0o755))
	require.NoError(t, os.WriteFile(c.path(NamespaceAnswers, "key"), entry, 0o644))

	_, ok, err := c.Get(NamespaceAnswers, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(c.path(NamespaceAnswers, "key"))
	assert.True(t, os.IsNotExist(err), "expired entry is deleted on read")
}

func TestDiskCacheCorruptEntryIsRemoved(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, NamespaceAnswers), 0o755))
	require.NoError(t, os.WriteFile(c.path(NamespaceAnswers, "key"), []byte("not json"), 0o644))

	_, ok, err := c.Get(NamespaceAnswers, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskCacheClearNamespace(t *testing.T) {
	c, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Set(NamespaceEmbeddings, "a", []byte("1"), 0))
	require.NoError(t, c.Set(NamespaceEmbeddings, "b", []byte("2"), 0))
	require.NoError(t, c.Set(NamespaceAnswers, "c", []byte("3"), 0))

	removed, err := c.ClearNamespace(NamespaceEmbeddings)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, err := c.Get(NamespaceAnswers, "c")
	require.NoError(t, err)
	assert.True(t, ok, "other namespaces are untouched")
}
