package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirDocuments holds the document database below the data directory
const DirDocuments = "documents"

// StoragePaths holds all storage directory paths
type StoragePaths struct {
	BaseDir      string
	DocumentsDir string
}

// InitDirectories creates and validates all storage directories
func InitDirectories(baseDir string) (*StoragePaths, error) {
	baseDir = filepath.Clean(baseDir)

	paths := &StoragePaths{
		BaseDir:      baseDir,
		DocumentsDir: filepath.Join(baseDir, DirDocuments),
	}

	for _, dir := range []string{paths.BaseDir, paths.DocumentsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := validateDirectory(dir); err != nil {
			return nil, fmt.Errorf("directory validation failed for %s: %w", dir, err)
		}
	}

	return paths, nil
}

// validateDirectory checks if a directory exists and is writable
func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory does not exist: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", path)
	}

	// Check write permissions by attempting to create a temp file
	testFile := filepath.Join(path, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}
