package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParentsAndRestrictsMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", ".env")

	require.NoError(t, WriteFile(path, []byte("KEY=1\n")))

	data, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("KEY=1\n"), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	require.False(t, Exists(path))
	require.NoError(t, WriteFile(path, []byte("KEY=1")))
	require.True(t, Exists(path))
	require.False(t, Exists(dir), "directories are not regular files")
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
