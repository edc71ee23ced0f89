// Package images stores category images on disk and validates uploads.
package images

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shelfkeeper/library-server/internal/id"
)

// Storage manages image filesystem operations.
// Thread-safe for concurrent operations.
// Images live in {basePath}/{folder}/{ref}, where ref is a generated name
// that keeps the upload's extension.
type Storage struct {
	basePath string
	mu       sync.RWMutex // Protects file operations
}

// NewStorage creates a new Storage rooted at basePath, creating it if needed.
func NewStorage(basePath string) (*Storage, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	return &Storage{basePath: basePath}, nil
}

// Save writes data under folder with a freshly generated name and returns that name.
// The extension is taken from filename, the name the upload arrived with.
func (s *Storage) Save(folder, filename string, data []byte) (string, error) {
	if err := checkName("folder", folder); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("image data cannot be empty")
	}

	ref, err := id.NewImageRef(filepath.Ext(filename))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.basePath, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", folder, err)
	}

	// Write file with appropriate permissions.
	if err := os.WriteFile(filepath.Join(dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	return ref, nil
}

// Get retrieves a stored image.
func (s *Storage) Get(ref, folder string) ([]byte, error) {
	if err := checkRef(ref, folder); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(ref, folder))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %s not found: %w", ref, err)
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return data, nil
}

// Exists checks if an image is stored.
func (s *Storage) Exists(ref, folder string) bool {
	if checkRef(ref, folder) != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(ref, folder))
	return err == nil
}

// Delete removes a stored image. It reports whether a file was removed;
// a missing file or an unusable name gives false.
func (s *Storage) Delete(ref, folder string) bool {
	if checkRef(ref, folder) != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return os.Remove(s.Path(ref, folder)) == nil
}

// Hash computes SHA256 hash of an image.
// Returns hex-encoded string for cache validation.
func (s *Storage) Hash(ref, folder string) (string, error) {
	data, err := s.Get(ref, folder)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// Path returns the full filesystem path for a stored image.
func (s *Storage) Path(ref, folder string) string {
	return filepath.Join(s.basePath, folder, ref)
}

func checkRef(ref, folder string) error {
	if err := checkName("folder", folder); err != nil {
		return err
	}
	return checkName("image ref", ref)
}

// checkName rejects anything that is not a single path element.
func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}
