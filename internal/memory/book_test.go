package memory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordingStore struct {
	mu     sync.Mutex
	saved  []Memory
	saveCh chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saveCh: make(chan struct{}, 16)}
}

func (s *recordingStore) Load(_ context.Context, visitorID string) Memory {
	return NewMemory(visitorID)
}

func (s *recordingStore) Save(_ context.Context, m Memory) error {
	s.mu.Lock()
	s.saved = append(s.saved, m)
	s.mu.Unlock()
	s.saveCh <- struct{}{}
	return nil
}

func (s *recordingStore) Clear(_ context.Context, _ string) error { return nil }
func (s *recordingStore) Close() error                            { return nil }

func (s *recordingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *recordingStore) waitForSave(t *testing.T) Memory {
	t.Helper()
	select {
	case <-s.saveCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("no flush happened")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

func TestBookTrimIsBatched(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 4, 100)
	now := time.Now()

	// Exactly 2N turns: no trim yet.
	for i := 0; i < 4; i++ {
		book.RecordUserTurn("zdravo", now)
		book.RecordAssistantTurn("zdravo i tebi", now)
	}
	if got := len(book.Snapshot().Turns); got != 8 {
		t.Fatalf("turns = %d, want 8 kept before the threshold", got)
	}

	// One more turn crosses 2N and collapses the buffer to N.
	book.RecordUserTurn("jos jedna", now)
	if got := len(book.Snapshot().Turns); got != 4 {
		t.Fatalf("turns = %d, want 4 after batched trim", got)
	}

	// The survivors are the most recent ones.
	turns := book.Snapshot().Turns
	if turns[len(turns)-1].Content != "jos jedna" {
		t.Fatalf("last turn = %q, want the newest one", turns[len(turns)-1].Content)
	}
}

func TestBookFlushCadence(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 4)
	now := time.Now()

	book.RecordUserTurn("prvi", now)
	book.RecordAssistantTurn("odgovor", now)
	if store.saveCount() != 0 {
		t.Fatalf("flushed after %d appended turns, cadence is 4", 2)
	}

	book.RecordUserTurn("drugi", now)
	book.RecordAssistantTurn("odgovor", now)
	saved := store.waitForSave(t)
	if len(saved.Turns) != 4 {
		t.Fatalf("flushed %d turns, want 4", len(saved.Turns))
	}
}

func TestBookFlushNowIsUnconditional(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 100)
	book.RecordUserTurn("zdravo", time.Now())

	if err := book.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}
	if store.saveCount() != 1 {
		t.Fatalf("saveCount = %d, want 1", store.saveCount())
	}
}

func TestBookFlushIsIdempotent(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 100)
	book.RecordUserTurn("zdravo", time.Now())

	if err := book.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}
	if err := book.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}

	first, _ := json.Marshal(store.saved[0])
	second, _ := json.Marshal(store.saved[1])
	if string(first) != string(second) {
		t.Fatalf("two flushes with no mutation differ:\n%s\n%s", first, second)
	}
}

func TestBookStageProgression(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 100)
	now := time.Now()

	stage, _ := book.RecordUserTurn("zdravo", now)
	if stage != StageFirstMeeting {
		t.Fatalf("after 1 interaction stage = %q, want %q", stage, StageFirstMeeting)
	}
	stage, _ = book.RecordUserTurn("opet ja", now)
	if stage != StageAcquainting {
		t.Fatalf("after 2 interactions stage = %q, want %q", stage, StageAcquainting)
	}
	for i := 0; i < 3; i++ {
		stage, _ = book.RecordUserTurn("i opet", now)
	}
	if stage != StageEstablished {
		t.Fatalf("after 5 interactions stage = %q, want %q", stage, StageEstablished)
	}
}

func TestBookTopicDiscoveryIsIdempotent(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 100)
	now := time.Now()

	_, added := book.RecordUserTurn("pricaj mi o sumi", now)
	if len(added) != 1 || added[0] != "priroda" {
		t.Fatalf("added = %v, want [priroda]", added)
	}
	_, added = book.RecordUserTurn("volim sumu i drvece", now)
	if len(added) != 0 {
		t.Fatalf("added = %v, want none the second time", added)
	}
	if topics := book.Topics(); len(topics) != 1 {
		t.Fatalf("topics = %v, want exactly one", topics)
	}
}

func TestBookClearWipesLiveAndStored(t *testing.T) {
	store := newRecordingStore()
	book := NewBook(context.Background(), store, DefaultTopicTable(), "v", 12, 100)
	book.RecordUserTurn("zdravo", time.Now())

	if err := book.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	snap := book.Snapshot()
	if len(snap.Turns) != 0 || snap.Interactions != 0 {
		t.Fatalf("memory not reset: %+v", snap)
	}
	if snap.VisitorID != "v" {
		t.Fatalf("VisitorID = %q, want preserved identity", snap.VisitorID)
	}
}
