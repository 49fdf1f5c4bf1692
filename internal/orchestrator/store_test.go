package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"live-orchestrator/internal/platform/cache"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, CollectionDebate); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Get on empty store: want ErrRecordNotFound, got %v", err)
	}

	if err := store.Put(ctx, CollectionDebate, []byte(`{"title":"a"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, CollectionDebate, []byte(`{"title":"b"}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := store.Put(ctx, CollectionStreams, []byte(`[]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, CollectionDebate)
	if err != nil || string(got) != `{"title":"b"}` {
		t.Errorf("Get = %q, %v; want overwritten value", got, err)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{CollectionDebate, CollectionStreams}; !reflect.DeepEqual(names, want) {
		t.Errorf("List = %v, want %v", names, want)
	}

	if err := store.Delete(ctx, CollectionDebate); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, CollectionDebate); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get after Delete: want ErrRecordNotFound, got %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, store)

	// Temp files from writes must not linger.
	entries, _ := os.ReadDir(filepath.Join(dir, "data"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestInMemoryStore_Get_returns_copy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	store.Put(ctx, CollectionUsers, []byte(`[]`))
	b, _ := store.Get(ctx, CollectionUsers)
	b[0] = 'x'
	again, _ := store.Get(ctx, CollectionUsers)
	if string(again) != `[]` {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

type fakeKV struct {
	data map[string][]byte
}

func (f *fakeKV) GetBytes(_ context.Context, key string) ([]byte, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return b, nil
}

func (f *fakeKV) SetBytes(_ context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func TestRedisStore_prefixes_keys(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{"other:streams": []byte(`[]`)}}
	store := newRedisStore(kv, "debate:")
	exerciseStore(t, store)

	if _, ok := kv.data["other:streams"]; !ok {
		t.Error("keys outside the prefix must be untouched")
	}
	if _, ok := kv.data["debate:streams"]; !ok {
		t.Error("expected collection under prefixed key")
	}
}

func TestRedisStore_live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	r, err := cache.New(url)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer r.Close()
	ctx := context.Background()
	prefix := "orchestrator-test:" + newTestID() + ":"
	store := NewRedisStore(r, prefix)
	defer func() {
		names, _ := store.List(ctx)
		for _, n := range names {
			store.Delete(ctx, n)
		}
	}()
	exerciseStore(t, store)
}

func TestLoadRecord_default_and_upstream(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	d, err := loadRecord(ctx, store, CollectionDebate, defaultDebate())
	if err != nil || d.Title != defaultDebate().Title {
		t.Fatalf("loadRecord default: %+v, %v", d, err)
	}

	store.Put(ctx, CollectionDebate, []byte("{not json"))
	if _, err := loadRecord(ctx, store, CollectionDebate, defaultDebate()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("corrupt record: want ErrUpstreamUnavailable, got %v", err)
	}

	if err := saveRecord(ctx, store, CollectionDebate, DebateRecord{Title: "t"}); err != nil {
		t.Fatalf("saveRecord: %v", err)
	}
	d, err = loadRecord(ctx, store, CollectionDebate, defaultDebate())
	if err != nil || d.Title != "t" {
		t.Errorf("roundtrip: %+v, %v", d, err)
	}
}
