package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is used by tests and by dry runs
// that should leave nothing on disk.
type MemoryStore struct {
	mu       sync.Mutex
	cursors  map[string]string
	sessions map[string]Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors:  make(map[string]string),
		sessions: make(map[string]Session),
	}
}

func (m *MemoryStore) GetCursor(ctx context.Context, channel string) (string, error) {
	if err := ValidateChannel(channel); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.cursors[channel]
	if !ok || ts == "" {
		return "", ErrCursorNotFound
	}
	return ts, nil
}

func (m *MemoryStore) AdvanceCursor(ctx context.Context, channel, ts string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursors[channel] = ts
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, channel string) (Session, error) {
	if err := ValidateChannel(channel); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[channel]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemoryStore) PutSession(ctx context.Context, channel string, sess Session) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	if sess.SessionID == "" {
		return ErrEmptySessionID
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[channel] = sess
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, channel string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, channel)
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) (map[string]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Session, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out, nil
}
