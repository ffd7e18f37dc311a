package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and parent-directory segments.
func ValidateFilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}

	for _, segment := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// ValidateFilePathWithBase validates a relative path and ensures it resolves inside baseDir
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	cleanBase := filepath.Clean(baseDir)
	full := filepath.Join(cleanBase, path)
	rel, err := filepath.Rel(cleanBase, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path escapes base directory: %s", path)
	}
	return nil
}
