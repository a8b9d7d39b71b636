package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/chanbridge/internal/observability"
	"github.com/harun/chanbridge/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	cursorsFile     = "cursors.json"
	sessionsDir     = "sessions"
	sessionExt      = ".json"
	recordFileMode  = 0o600
	recordDirMode   = 0o700
	tempFilePattern = ".record-*.json.tmp"
)

// FileStore keeps one cursors.json for every channel and one
// sessions/<channel>.json per channel.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dataDir
func NewFileStore(dataDir string) (*FileStore, error) {
	observability.EnsureRegistered()

	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".chanbridge")
	}

	if err := os.MkdirAll(filepath.Join(dataDir, sessionsDir), recordDirMode); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	fs := &FileStore{dataDir: dataDir}

	log.Info().Str("dir", dataDir).Msg("Session store initialized")
	fs.updateActiveSessionsMetric()

	return fs, nil
}

// GetCursor returns the stored cursor for channel
func (fs *FileStore) GetCursor(ctx context.Context, channel string) (string, error) {
	if err := ValidateChannel(channel); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	cursors, err := fs.loadCursors()
	if err != nil {
		return "", err
	}

	ts, ok := cursors[channel]
	if !ok || ts == "" {
		return "", ErrCursorNotFound
	}
	return ts, nil
}

// AdvanceCursor overwrites the cursor for channel with ts
func (fs *FileStore) AdvanceCursor(ctx context.Context, channel, ts string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	cursors, err := fs.loadCursors()
	if err != nil {
		return err
	}
	cursors[channel] = ts

	if err := fs.writeJSON(fs.cursorsPath(), cursors); err != nil {
		return fmt.Errorf("failed to save cursors: %w", err)
	}

	log.Debug().Str("channel", channel).Str("ts", ts).Msg("Cursor advanced")
	return nil
}

// GetSession loads the session record for channel
func (fs *FileStore) GetSession(ctx context.Context, channel string) (Session, error) {
	ctx, span := tracing.StartSpan(ctx, "chanbridge.session", "session.get", attribute.String("channel", channel))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateChannel(channel); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	sess, err := fs.loadSession(channel)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return sess, err
}

// PutSession replaces the session record for channel
func (fs *FileStore) PutSession(ctx context.Context, channel string, sess Session) error {
	ctx, span := tracing.StartSpan(ctx, "chanbridge.session", "session.put", attribute.String("channel", channel))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("channel", channel).Logger()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateChannel(channel); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if sess.SessionID == "" {
		return ErrEmptySessionID
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.writeJSON(fs.sessionPath(channel), sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save session: %w", err)
	}

	fs.updateActiveSessionsMetric()
	logger.Info().
		Str("session_id", sess.SessionID).
		Str("project_path", sess.ProjectPath).
		Msg("Session stored")

	return nil
}

// DeleteSession removes the session record for channel
func (fs *FileStore) DeleteSession(ctx context.Context, channel string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.sessionPath(channel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	fs.updateActiveSessionsMetric()
	log.Info().Str("channel", channel).Msg("Session deleted")

	return nil
}

// ListSessions returns all stored sessions keyed by channel
func (fs *FileStore) ListSessions(ctx context.Context) (map[string]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.listSessions()
}

func (fs *FileStore) listSessions() (map[string]Session, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dataDir, sessionsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Session{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := make(map[string]Session, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionExt) || strings.HasPrefix(name, ".") {
			continue
		}

		channel := strings.TrimSuffix(name, sessionExt)
		sess, err := fs.loadSession(channel)
		if err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Failed to read session record, skipping")
			continue
		}
		sessions[channel] = sess
	}

	return sessions, nil
}

func (fs *FileStore) loadCursors() (map[string]string, error) {
	cursors := map[string]string{}

	data, err := os.ReadFile(fs.cursorsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cursors, nil
		}
		return nil, fmt.Errorf("failed to read cursors file: %w", err)
	}
	if len(data) == 0 {
		return cursors, nil
	}

	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("failed to decode cursors file: %w", err)
	}
	return cursors, nil
}

func (fs *FileStore) loadSession(channel string) (Session, error) {
	data, err := os.ReadFile(fs.sessionPath(channel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to decode session file: %w", err)
	}
	if sess.SessionID == "" {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// writeJSON replaces path atomically via a temp file in the same directory.
func (fs *FileStore) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), recordDirMode); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tempFile.Chmod(recordFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp record: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	cleanup = false

	return nil
}

func (fs *FileStore) cursorsPath() string {
	return filepath.Join(fs.dataDir, cursorsFile)
}

func (fs *FileStore) sessionPath(channel string) string {
	return filepath.Join(fs.dataDir, sessionsDir, channel+sessionExt)
}

// updateActiveSessionsMetric must be called with fs.mu held (or before the
// store is shared).
func (fs *FileStore) updateActiveSessionsMetric() {
	sessions, err := fs.listSessions()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(sessions))
}
