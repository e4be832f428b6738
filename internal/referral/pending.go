// Package referral implements the invite flow: the cached pending referral
// code, the user's own invite link and stats, and applying a code.
package referral

import (
	"strings"
	"sync"
	"time"

	"github.com/memeindex/memeindex/internal/fileutil"
)

// PendingStore holds the single referral code waiting to be applied at
// registration.
type PendingStore interface {
	Load() (string, error)
	Save(code string) error
	Clear() error
}

// MemoryStore is a PendingStore kept in memory.
type MemoryStore struct {
	mu   sync.Mutex
	code string
}

// Compile-time interface checks
var (
	_ PendingStore = (*MemoryStore)(nil)
	_ PendingStore = (*FileStore)(nil)
)

// NewMemoryStore creates a store holding code.
func NewMemoryStore(code string) *MemoryStore {
	return &MemoryStore{code: strings.TrimSpace(code)}
}

// Load returns the pending code, or "" when there is none.
func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, nil
}

// Save replaces the pending code.
func (s *MemoryStore) Save(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = strings.TrimSpace(code)
	return nil
}

// Clear drops the pending code.
func (s *MemoryStore) Clear() error {
	return s.Save("")
}

// FileStore is a PendingStore backed by a small JSON file.
type FileStore struct {
	path string
	now  func() time.Time
}

type pendingFile struct {
	Code    string    `json:"code"`
	SavedAt time.Time `json:"saved_at"`
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the pending code, or "" when the file does not exist.
func (s *FileStore) Load() (string, error) {
	var f pendingFile
	found, err := fileutil.ReadJSON(s.path, &f)
	if err != nil || !found {
		return "", err
	}
	return strings.TrimSpace(f.Code), nil
}

// Save writes code to the file. An empty code clears it.
func (s *FileStore) Save(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return s.Clear()
	}
	return fileutil.WriteJSON(s.path, pendingFile{Code: code, SavedAt: s.now().UTC()}, 0o600)
}

// Clear removes the file.
func (s *FileStore) Clear() error {
	return fileutil.Remove(s.path)
}
