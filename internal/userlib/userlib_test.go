package userlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFile_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helpers.go")
	require.NoError(t, os.WriteFile(path, []byte("func Double(n int) int { return n * 2 }\n"), 0o644))

	src, err := File{Path: path}.Load()
	require.NoError(t, err)
	require.Contains(t, src, "Double")

	_, err = File{Path: filepath.Join(t.TempDir(), "missing.go")}.Load()
	require.Error(t, err)
}

func TestNoneAndSource(t *testing.T) {
	src, err := None{}.Load()
	require.NoError(t, err)
	require.Empty(t, src)

	src, err = Source("func X() {}").Load()
	require.NoError(t, err)
	require.Equal(t, "func X() {}", src)
}
