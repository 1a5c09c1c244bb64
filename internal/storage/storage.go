package storage

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/parleyhq/parley/internal/core"
)

// ErrNotFound is returned when a session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// SaveHook is the write-side surface the debate engine calls as a
// session progresses. Implementations must be safe for concurrent use;
// the engine invokes these from session goroutines.
type SaveHook interface {
	// SaveSession upserts the full session record.
	SaveSession(session *core.Session) error
	// SaveMessage persists a single appended message. The session is
	// provided for context (ID, participants); implementations must not
	// mutate it.
	SaveMessage(session *core.Session, message *core.Message) error
}

// Store is the full persistence surface.
type Store interface {
	SaveHook

	Initialize() error
	Close() error

	GetSession(id string) (*core.Session, error)
	ListSessions(limit, offset int) ([]*core.SessionSummary, error)
	DeleteSession(id string) error
}

// DefaultDBPath returns the default database location under the user's
// home directory, falling back to the working directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley.db"
	}
	return filepath.Join(home, ".parley", "parley.db")
}
