package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
)

const visitorIDKey = "qualify_visitor_id"

// ErrStorageBlocked is returned by storages that refuse access, e.g. in privacy mode
var ErrStorageBlocked = errors.New("storage blocked")

// Storage is the host's durable key-value storage
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
}

// VisitorID returns the persisted visitor identifier, creating it on first use.
// When storage is unavailable a fresh identifier scoped to this run is returned.
func VisitorID(store Storage) string {
	if store == nil {
		return newID("v_")
	}
	id, ok, err := store.GetItem(visitorIDKey)
	if err != nil {
		return newID("v_")
	}
	if ok && id != "" {
		return id
	}
	id = newID("v_")
	_ = store.SetItem(visitorIDKey, id)
	return id
}

// NewSessionID always returns a new session identifier
func NewSessionID() string {
	return newID("s_")
}

// ULIDs carry a millisecond timestamp and 80 random bits
func newID(prefix string) string {
	return prefix + ulid.Make().String()
}

// MemoryStorage keeps items in memory for the lifetime of the process
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (s *MemoryStorage) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

// FileStorage persists items as a JSON object in a single file, standing in for a
// browser profile's local storage
type FileStorage struct {
	mu   sync.Mutex
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

func (s *FileStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	items[key] = value

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) load() (map[string]string, error) {
	items := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage: %w", err)
	}
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode storage: %w", err)
	}
	return items, nil
}

// BlockedStorage rejects every access
type BlockedStorage struct{}

func (BlockedStorage) GetItem(string) (string, bool, error) { return "", false, ErrStorageBlocked }
func (BlockedStorage) SetItem(string, string) error { return ErrStorageBlocked }
