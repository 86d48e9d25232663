package clientsession

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/minucst/portal/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// Storage is a string key/value store standing in for the browser's local
// storage.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// Compile-time interface checks.
var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string, 4)}
}

// Get implements Storage.
func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]

	return v, ok, nil
}

// Set implements Storage.
func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	return nil
}

// Remove implements Storage.
func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	return nil
}

// FileStorage persists all keys as a single JSON object on disk. Every
// operation re-reads the file so that several processes can share it. A
// file that does not decode is treated as empty and replaced on the next
// write.
type FileStorage struct {
	log  logrus.FieldLogger
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a FileStorage backed by path. The file is created
// on the first write.
func NewFileStorage(log logrus.FieldLogger, path string) *FileStorage {
	return &FileStorage{
		log:  log.WithField("component", "client-storage"),
		path: path,
	}
}

// Get implements Storage.
func (s *FileStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}

	v, ok := values[key]

	return v, ok, nil
}

// Set implements Storage.
func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}

	values[key] = value

	return s.save(values)
}

// Remove implements Storage.
func (s *FileStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := values[key]; !ok {
		return nil
	}

	delete(values, key)

	return s.save(values)
}

func (s *FileStorage) load() (map[string]string, error) {
	data, err := fsutil.ReadFileIfExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading client state: %w", err)
	}

	values := make(map[string]string, 4)
	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		s.log.WithError(err).
			WithField("path", s.path).
			Warn("Discarding undecodable client state")

		return make(map[string]string, 4), nil
	}

	return values, nil
}

func (s *FileStorage) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding client state: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing client state: %w", err)
	}

	return nil
}
