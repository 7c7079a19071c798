package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	match "go-stranger/internal/pkg/matchmaking/application/domain"

	"github.com/google/uuid"
)

const prefix = "user_"

// New mints a fresh anonymous identity.
func New() match.Identity {
	return match.Identity(prefix + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// FileStore keeps the local identity in a single file so it survives restarts.
type FileStore struct {
	path string

	mu     sync.Mutex
	cached match.Identity
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// GetOrCreate returns the stored identity, minting and persisting one on first use.
// A corrupt file is replaced.
func (s *FileStore) GetOrCreate() (match.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if id := match.Identity(strings.TrimSpace(string(raw))); id.Valid() {
			s.cached = id
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("identity: read %s: %w", s.path, err)
	}

	id := New()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("identity: create dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(string(id)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("identity: write %s: %w", s.path, err)
	}
	s.cached = id
	return id, nil
}

// MemoryStore holds an identity for the lifetime of the process.
type MemoryStore struct {
	once sync.Once
	id   match.Identity
}

func (s *MemoryStore) GetOrCreate() (match.Identity, error) {
	s.once.Do(func() { s.id = New() })
	return s.id, nil
}
