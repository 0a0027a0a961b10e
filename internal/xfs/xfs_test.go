package xfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "cache"), ExpandTilde("~/cache"))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, "/absolute/path", ExpandTilde("/absolute/path"))
	assert.Equal(t, "relative/path", ExpandTilde("relative/path"))
}

func TestDirAndFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
