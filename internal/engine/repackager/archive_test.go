package repackager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveDir_ExtractZip_RoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "b.txt"), []byte("world"), 0o644))

	zipPath := filepath.Join(t.TempDir(), "exec.zip")
	require.NoError(t, archiveDir(srcDir, zipPath))

	zipData, err := os.ReadFile(zipPath)
	require.NoError(t, err)

	destDir := t.TempDir()
	require.NoError(t, extractZip(zipData, destDir))

	a, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(a))

	b, err := os.ReadFile(filepath.Join(destDir, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestCopyTreeExcludingGit(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.go"), []byte("package main"), 0o644))

	dstDir := t.TempDir()
	require.NoError(t, copyTreeExcludingGit(srcDir, dstDir))

	_, err := os.Stat(filepath.Join(dstDir, ".git"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(dstDir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))
}
