package storage

import (
	"context"
	"io"
	"testing"

	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_ImplementsStore(t *testing.T) {
	var _ Store = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "cache/batch.json", []byte("v1")))
	require.NoError(t, fs.Write(ctx, "cache/batch.json", []byte("v2")))

	got, err := fs.Read(ctx, "cache/batch.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	rc, err := fs.Open(ctx, "cache/batch.json")
	require.NoError(t, err)
	defer rc.Close()
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(streamed))
}

func TestLocalFS_NotFound(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Read(ctx, "stock/sh600000.csv")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = fs.Open(ctx, "stock/sh600000.csv")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, fs.Delete(ctx, "missing"), core.ErrNotFound)
}

func TestLocalFS_Exists(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := fs.Exists(ctx, "nonexistent.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Write(ctx, "exists.txt", []byte("data")))
	exists, err = fs.Exists(ctx, "exists.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalFS_List(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "stock/sz000001.csv", []byte("b")))
	require.NoError(t, fs.Write(ctx, "stock/sh600000.csv", []byte("a")))
	require.NoError(t, fs.Write(ctx, "index/sh000001.csv", []byte("c")))

	paths, err := fs.List(ctx, "stock")
	require.NoError(t, err)
	assert.Equal(t, []string{"stock/sh600000.csv", "stock/sz000001.csv"}, paths)

	empty, err := fs.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalFS_Delete(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "delete.txt", []byte("data")))
	require.NoError(t, fs.Delete(ctx, "delete.txt"))

	exists, _ := fs.Exists(ctx, "delete.txt")
	assert.False(t, exists, "file should be deleted")
}

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New(config.StorageConfig{Type: "localfs", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalFS{}, s)

	s, err = New(config.StorageConfig{Type: "s3", S3: config.S3Config{Bucket: "research", Region: "us-east-1"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Storage{}, s)

	_, err = New(config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}
