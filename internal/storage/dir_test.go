package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	paths, err := InitDirectories(tmpDir)
	require.NoError(t, err)
	assert.NotNil(t, paths)

	assert.DirExists(t, paths.BaseDir)
	assert.DirExists(t, paths.DocumentsDir)
	assert.Equal(t, filepath.Join(tmpDir, DirDocuments), paths.DocumentsDir)
}

func TestInitDirectories_FileInTheWay(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := InitDirectories(file)
	assert.Error(t, err)
}
