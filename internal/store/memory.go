// internal/store/memory.go
//
// In-memory store of in-flight trial sessions.
//
// Characteristics:
//   - Sessions keyed by trial id in a map guarded by an RWMutex.
//   - A session owns its widget and the recorder that collects render ops
//     between requests.
//   - State is lost on restart; finished trials live in the results database.
//   - Get returns ErrNotFound for unknown or evicted ids.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/gridrecon/internal/grid"
)

var ErrNotFound = errors.New("store: trial not found")

// Session is one participant's live trial.
type Session struct {
	ID            string
	ParticipantID string
	StimulusID    string
	SceneID       int
	ConditionID   int
	CreatedAt     time.Time

	Widget   *grid.Widget
	Recorder *grid.Recorder
}

// Store defines the persistence interface for trial sessions.
type Store interface {
	// Save persists or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by trial id.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete forgets a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Len reports how many sessions are held.
	Len() int
}

type memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session)}
}

func (m *memory) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
