package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	sessionsFileMode = 0o600
	sessionsDirMode  = 0o700
	tempFilePattern  = ".sessions-*.toml.tmp"
)

// SessionRepository persists the session store snapshot in a TOML file.
type SessionRepository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(path string) (*SessionRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sessions path is empty")
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &SessionRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *SessionRepository) Path() string {
	return r.path
}

// Load returns an empty snapshot when the file does not exist yet.
func (r *SessionRepository) Load(ctx context.Context) (domain.SessionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionSnapshot{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	return fromSchema(file)
}

func (r *SessionRepository) Save(ctx context.Context, snapshot domain.SessionSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeSchema(toSchema(snapshot))
}

func (r *SessionRepository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read sessions file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode sessions file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *SessionRepository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), sessionsDirMode); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode sessions file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
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
		return fmt.Errorf("write temp sessions file: %w", err)
	}
	if err := tempFile.Chmod(sessionsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp sessions file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp sessions file: %w", err)
	}
	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace sessions file: %w", err)
	}
	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sessions path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSchema(snapshot domain.SessionSnapshot) fileSchema {
	file := fileSchema{
		Version:  currentSchemaVersion,
		Active:   string(snapshot.Active),
		Cursor:   snapshot.Cursor,
		SavedAt:  formatTime(snapshot.SavedAt),
		Sessions: make([]sessionSchema, 0, len(snapshot.Sessions)),
	}

	for _, session := range snapshot.Sessions {
		entry := sessionSchema{
			Topic:        string(session.Topic),
			Expiry:       formatTime(session.Expiry),
			Acknowledged: session.Acknowledged,
			Peer: peerSchema{
				Name:        session.Peer.Name,
				Description: session.Peer.Description,
				URL:         session.Peer.URL,
				Icons:       session.Peer.Icons,
			},
		}
		if len(session.Namespaces) > 0 {
			entry.Namespaces = make(map[string]namespaceSchema, len(session.Namespaces))
			for key, ns := range session.Namespaces {
				entry.Namespaces[key] = namespaceSchema(ns)
			}
		}
		file.Sessions = append(file.Sessions, entry)
	}

	return file
}

func fromSchema(file fileSchema) (domain.SessionSnapshot, error) {
	savedAt, err := parseTime(file.SavedAt)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("decode saved_at: %w", err)
	}

	snapshot := domain.SessionSnapshot{
		Active:   domain.Topic(file.Active),
		Cursor:   file.Cursor,
		SavedAt:  savedAt,
		Sessions: make([]domain.Session, 0, len(file.Sessions)),
	}

	for _, entry := range file.Sessions {
		expiry, err := parseTime(entry.Expiry)
		if err != nil {
			return domain.SessionSnapshot{}, fmt.Errorf("decode expiry of session %s: %w", entry.Topic, err)
		}

		session := domain.Session{
			Topic:        domain.Topic(entry.Topic),
			Expiry:       expiry,
			Acknowledged: entry.Acknowledged,
			Peer: domain.PeerMetadata{
				Name:        entry.Peer.Name,
				Description: entry.Peer.Description,
				URL:         entry.Peer.URL,
				Icons:       entry.Peer.Icons,
			},
		}
		if len(entry.Namespaces) > 0 {
			session.Namespaces = make(map[string]domain.Namespace, len(entry.Namespaces))
			for key, ns := range entry.Namespaces {
				session.Namespaces[key] = domain.Namespace(ns)
			}
		}
		snapshot.Sessions = append(snapshot.Sessions, session)
	}

	return snapshot, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, raw)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
