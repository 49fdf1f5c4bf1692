package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Collections persisted through a Store. Each is written whole on every change.
const (
	CollectionStreams    = "streams"
	CollectionDebate     = "debate"
	CollectionUsers      = "users"
	CollectionSchedule   = "liveSchedule"
	CollectionStatistics = "statistics"
)

// ErrRecordNotFound is returned by a Store when a collection has never been written.
var ErrRecordNotFound = errors.New("record not found")

// Store is the persistence abstraction for orchestrator records.
// Implementations can be in-memory, file-based, or remote. A collection is an
// opaque JSON document; there are no partial updates and no cross-collection
// transactions.
type Store interface {
	Get(ctx context.Context, collection string) ([]byte, error)
	Put(ctx context.Context, collection string, data []byte) error
	Delete(ctx context.Context, collection string) error
	List(ctx context.Context) ([]string, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(_ context.Context, collection string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[collection]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append([]byte(nil), b...), nil
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(_ context.Context, collection string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[collection] = append([]byte(nil), data...)
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, collection)
	return nil
}

// List implements Store.List.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FileStore keeps one pretty-printed JSON file per collection in a directory.
// Writes go to a temp file that is renamed over the target.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Get implements Store.Get.
func (s *FileStore) Get(_ context.Context, collection string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrRecordNotFound
	}
	return b, err
}

// Put implements Store.Put.
func (s *FileStore) Put(_ context.Context, collection string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(collection))
}

// Delete implements Store.Delete. Deleting a missing collection is not an error.
func (s *FileStore) Delete(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// List implements Store.List.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// loadRecord decodes a collection into T, returning def when it was never written.
// Store and decode failures are reported as ErrUpstreamUnavailable.
func loadRecord[T any](ctx context.Context, s Store, collection string, def T) (T, error) {
	raw, err := s.Get(ctx, collection)
	if errors.Is(err, ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, upstream("read "+collection, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, upstream("decode "+collection, err)
	}
	return v, nil
}

// saveRecord encodes v as indented JSON and overwrites the collection.
func saveRecord(ctx context.Context, s Store, collection string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if err := s.Put(ctx, collection, raw); err != nil {
		return upstream("write "+collection, err)
	}
	return nil
}

func defaultDebate() DebateRecord {
	return DebateRecord{
		Title:         "If a button could erase all pain in one press, would you press it?",
		Description:   "A debate about pain, growth and human choice",
		LeftPosition:  "Press it",
		RightPosition: "Leave it",
	}
}
