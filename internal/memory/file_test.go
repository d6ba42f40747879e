package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "memory.json")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	m := NewMemory("v")
	m.Interactions = 3
	m.Topics = []string{"priroda"}
	m.Turns = []Turn{{Role: RoleUser, Content: "zdravo", CreatedAt: time.Now().UTC()}}

	if err := store.Save(context.Background(), m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := store.Load(context.Background(), "v")
	if got.Interactions != 3 || len(got.Turns) != 1 || len(got.Topics) != 1 {
		t.Fatalf("loaded memory does not match saved: %+v", got)
	}
}

func TestFileStoreMissingFileStartsFresh(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "memory.json")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got := store.Load(context.Background(), "v")
	if got.VisitorID != "v" || got.Interactions != 0 {
		t.Fatalf("expected fresh memory, got %+v", got)
	}
}

func TestFileStoreCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "memory.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store, err := NewFileStore(dir, "memory.json")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got := store.Load(context.Background(), "v")
	if got.VisitorID != "v" || len(got.Turns) != 0 {
		t.Fatalf("expected fresh memory after corruption, got %+v", got)
	}
}
