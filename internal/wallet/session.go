package wallet

import (
	"errors"
	"fmt"
	"os"

	"github.com/memeindex/memeindex/internal/fileutil"
)

const (
	// sessionFilePermissions is the permission mode for the session file.
	sessionFilePermissions = 0o600

	// sessionVersion is the on-disk format version.
	sessionVersion = 1
)

// ErrSessionCorrupted indicates the session file could not be parsed.
var ErrSessionCorrupted = errors.New("wallet session corrupted")

// SessionStore persists the connector's live session so it can be restored
// the next time the connector is created.
type SessionStore interface {
	Load() (Account, bool, error)
	Save(acct Account) error
	Clear() error
}

type sessionFile struct {
	Version int     `json:"version"`
	Account Account `json:"account"`
}

// FileSession keeps the session in a JSON file.
type FileSession struct {
	path string
}

// NewFileSession creates a file-backed session store at path.
func NewFileSession(path string) *FileSession {
	return &FileSession{path: path}
}

// Load reads the stored session. A corrupted file is removed and reported.
func (s *FileSession) Load() (Account, bool, error) {
	var sf sessionFile
	found, err := fileutil.ReadJSON(s.path, &sf)
	if err != nil {
		if found {
			_ = os.Remove(s.path)
			return Account{}, false, fmt.Errorf("%w: %w", ErrSessionCorrupted, err)
		}
		return Account{}, false, err
	}
	if !found || sf.Account.Address.IsZero() {
		return Account{}, false, nil
	}
	return sf.Account, true, nil
}

// Save writes acct as the live session.
func (s *FileSession) Save(acct Account) error {
	return fileutil.WriteJSON(s.path, sessionFile{Version: sessionVersion, Account: acct}, sessionFilePermissions)
}

// Clear removes the stored session.
func (s *FileSession) Clear() error {
	return fileutil.Remove(s.path)
}

// Path returns the session file path.
func (s *FileSession) Path() string {
	return s.path
}
