package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFileAndDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "c.txt"), []byte("c"), 0o644))

	require.NoError(t, Move(filepath.Join(root, "a"), filepath.Join(root, "z")))
	_, err := os.Stat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(root, "z", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
}

func TestCopyTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "d", "f"), []byte("hello"), 0o600))

	dst := filepath.Join(root, "dst")
	require.NoError(t, copyTree(src, dst))
	data, err := os.ReadFile(filepath.Join(dst, "d", "f"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	info, err := os.Stat(filepath.Join(dst, "d", "f"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMediaType(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, "audio/mp4", MediaType(filepath.Join(root, "song.m4a")))
	assert.Equal(t, "application/pdf", MediaType(filepath.Join(root, "x.PDF")))
	assert.Equal(t, "application/zip", MediaType(filepath.Join(root, "out.zip")))

	png := filepath.Join(root, "noext")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))
	assert.Equal(t, "image/png", MediaType(png))

	assert.Equal(t, "", MediaType(filepath.Join(root, "missing")))
}
