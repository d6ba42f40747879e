package memory

import (
	"context"
	"log"
	"sync"
	"time"
)

// Book is the live visitor memory plus its persistence policy: flushes are
// batched every flushEvery appended turns and forced on suspend/shutdown.
// Reply delivery never waits on a flush.
type Book struct {
	mu           sync.Mutex
	store        Store
	table        *TopicTable
	mem          Memory
	contextTurns int
	flushEvery   int
	sinceFlush   int
}

func NewBook(ctx context.Context, store Store, table *TopicTable, visitorID string, contextTurns, flushEvery int) *Book {
	if table == nil {
		table = DefaultTopicTable()
	}
	if contextTurns <= 0 {
		contextTurns = 12
	}
	if flushEvery <= 0 {
		flushEvery = 3
	}
	return &Book{
		store:        store,
		table:        table,
		mem:          store.Load(ctx, visitorID),
		contextTurns: contextTurns,
		flushEvery:   flushEvery,
	}
}

// RecordUserTurn appends a user turn, bumps the interaction counter and
// unions newly discovered topics. Returns the stage after the bump and the
// tags added by this turn.
func (b *Book) RecordUserTurn(text string, now time.Time) (Stage, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mem.Turns = append(b.mem.Turns, Turn{Role: RoleUser, Content: text, CreatedAt: now})
	b.mem.Interactions++
	if b.mem.FirstContact.IsZero() {
		b.mem.FirstContact = now
	}
	b.mem.LastInteraction = now
	added := b.mem.DiscoverTopics(b.table, text)
	b.trimLocked()
	b.sinceFlush++
	return b.mem.Stage(), added
}

// RecordAssistantTurn appends the reply and kicks a batched flush when due.
func (b *Book) RecordAssistantTurn(text string, now time.Time) {
	b.mu.Lock()
	b.mem.Turns = append(b.mem.Turns, Turn{Role: RoleAssistant, Content: text, CreatedAt: now})
	b.trimLocked()
	b.sinceFlush++
	due := b.sinceFlush >= b.flushEvery
	if due {
		b.sinceFlush = 0
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	if due {
		go b.persist(snapshot)
	}
}

// AppendNote accumulates a free-text observation about the visitor.
func (b *Book) AppendNote(note string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem.PersonalityNote == "" {
		b.mem.PersonalityNote = note
		return
	}
	b.mem.PersonalityNote += " " + note
}

// Window builds the context sent to the language model.
func (b *Book) Window(now time.Time) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem.ContextWindow(b.contextTurns, now)
}

// Snapshot returns a deep copy for inspection endpoints.
func (b *Book) Snapshot() Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Book) Stage() Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem.Stage()
}

func (b *Book) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.mem.Topics))
	copy(out, b.mem.Topics)
	return out
}

// FlushNow persists unconditionally, regardless of batch position.
func (b *Book) FlushNow(ctx context.Context) error {
	b.mu.Lock()
	b.sinceFlush = 0
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	return b.store.Save(ctx, snapshot)
}

// FlushAsync persists in the background; used on session suspend.
func (b *Book) FlushAsync() {
	b.mu.Lock()
	b.sinceFlush = 0
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	go b.persist(snapshot)
}

// Clear wipes both the live memory and the persisted record.
func (b *Book) Clear(ctx context.Context) error {
	b.mu.Lock()
	visitorID := b.mem.VisitorID
	b.mem = NewMemory(visitorID)
	b.sinceFlush = 0
	b.mu.Unlock()
	return b.store.Clear(ctx, visitorID)
}

func (b *Book) persist(snapshot Memory) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.store.Save(ctx, snapshot); err != nil {
		log.Printf("memory: flush failed: %v", err)
	}
}

// trimLocked applies the batched eviction policy: the buffer only shrinks
// once it exceeds twice the retention cap, and then the oldest turns are
// dropped wholesale down to the cap. Intentionally not a per-turn trim.
func (b *Book) trimLocked() {
	if len(b.mem.Turns) <= 2*b.contextTurns {
		return
	}
	b.mem.Turns = append([]Turn(nil), b.mem.Turns[len(b.mem.Turns)-b.contextTurns:]...)
}

func (b *Book) snapshotLocked() Memory {
	out := b.mem
	out.Turns = append([]Turn(nil), b.mem.Turns...)
	out.Topics = append([]string(nil), b.mem.Topics...)
	return out
}
