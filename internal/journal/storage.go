package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxBaseLen = 50

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// Storage keeps archived uploads and exports
type Storage interface {
	// Save writes data under a sanitized version of name and returns the stored name
	Save(name string, data []byte) (string, error)

	Get(name string) ([]byte, error)

	Delete(name string) error
}

// LocalStorage implements Storage in a directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Path returns the on-disk location of a stored name
func (l *LocalStorage) Path(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	clean := SanitizeFilename(name)
	if err := os.WriteFile(l.Path(clean), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return clean, nil
}

func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(name))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(name string) error {
	if err := os.Remove(l.Path(name)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// SanitizeFilename keeps letters, digits, spaces, hyphens and underscores in
// the base name, truncates it, and lower-cases the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	if base == "" {
		base = "file"
	}

	ext = unsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
