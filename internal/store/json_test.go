package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamgate/internal/resolver"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSON(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, path
}

func testRecord(id string) Record {
	return Record{
		ID:        id,
		Name:      "cam " + id,
		SourceURL: "rtsp://cam.local/" + id,
		Kind:      resolver.KindDirect,
		Status:    StatusStopped,
		OutputDir: "/tmp/streams/" + id,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewJSON(filepath.Join(t.TempDir(), "nope", "state.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("expected empty store, got %d records", got)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewJSON(path)
	if err := s.Load(); err == nil {
		t.Error("expected error for malformed state file")
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("malformed file should yield empty store, got %d records", got)
	}

	// Store stays usable after the failed load.
	if err := s.Upsert(testRecord("s1")); err != nil {
		t.Fatalf("Upsert after failed load: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	rec := testRecord("s1")
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok := s.Get("s1")
	if !ok {
		t.Fatal("record not found")
	}
	if got.SourceURL != rec.SourceURL || got.Name != rec.Name {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	rec.Status = StatusRunning
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	got, _ = s.Get("s1")
	if got.Status != StatusRunning {
		t.Errorf("status = %v, want running", got.Status)
	}
	if got := len(s.List()); got != 1 {
		t.Errorf("update must not duplicate, have %d records", got)
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t)
	s.Upsert(testRecord("s1"))
	s.Upsert(testRecord("s2"))

	if err := s.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get("s1"); ok {
		t.Error("s1 still present after Remove")
	}
	if _, ok := s.Get("s2"); !ok {
		t.Error("s2 lost after removing s1")
	}

	// Unknown ID is a no-op.
	if err := s.Remove("ghost"); err != nil {
		t.Errorf("Remove unknown: %v", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		s.Upsert(testRecord(id))
	}
	s.Remove("a")
	s.Upsert(testRecord("d"))

	var got []string
	for _, rec := range s.List() {
		got = append(got, rec.ID)
	}
	want := []string{"c", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List = %v, want %v", got, want)
		}
	}
}

func TestPersistAndReload(t *testing.T) {
	s, path := newTestStore(t)

	rec := testRecord("s1")
	rec.Status = StatusRunning
	rec.RestartCount = 3
	rec.ResolvedURL = "https://edge.example.com/hls.m3u8"
	rec.Kind = resolver.KindPlatform
	rec.LastRefreshAt = time.Now().UTC().Truncate(time.Second)
	s.Upsert(rec)
	s.Upsert(testRecord("s2"))

	reloaded := NewJSON(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, ok := reloaded.Get("s1")
	if !ok {
		t.Fatal("s1 not found after reload")
	}
	if got.SourceURL != rec.SourceURL || got.ResolvedURL != rec.ResolvedURL || got.Kind != rec.Kind {
		t.Errorf("reloaded record lost fields: %+v", got)
	}
	if !got.LastRefreshAt.Equal(rec.LastRefreshAt) {
		t.Errorf("last refresh = %v, want %v", got.LastRefreshAt, rec.LastRefreshAt)
	}

	// Runtime state does not survive a restart.
	if got.Status != StatusStopped {
		t.Errorf("reloaded status = %v, want stopped", got.Status)
	}
	if got.RestartCount != 0 {
		t.Errorf("reloaded restart count = %d, want 0", got.RestartCount)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	s, path := newTestStore(t)
	s.Upsert(testRecord("s1"))

	// No temp files left behind next to the state file.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}
