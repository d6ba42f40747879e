package brain

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/arborworks/arbor/internal/memory"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/policy"
	"github.com/arborworks/arbor/internal/reliability"
)

// Generator owns the visitor memory and produces one reply per turn. It
// never fails the caller: if the language model cannot answer, a rule-based
// reply keeps the conversation going.
type Generator struct {
	mu      sync.Mutex
	book    *memory.Book
	remote  *remoteClient
	persona string
	metrics *observability.Metrics
	fb      fallback
	offline bool
}

func NewGenerator(cfg RemoteConfig, persona string, book *memory.Book, metrics *observability.Metrics) *Generator {
	offline := strings.TrimSpace(cfg.APIKey) == ""
	g := &Generator{
		book:    book,
		persona: persona,
		metrics: metrics,
		offline: offline,
	}
	if offline {
		log.Printf("brain: no API key configured, using rule-based replies")
	} else {
		g.remote = newRemoteClient(cfg)
	}
	return g
}

// Generate records the visitor's utterance, asks the language model for a
// reply and records it. The user text is redacted before it touches the
// persisted memory.
func (g *Generator) Generate(ctx context.Context, userText string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	redacted, changed := policy.RedactPII(userText)
	if changed {
		log.Printf("brain: redacted PII from visitor utterance")
	}
	stage, added := g.book.RecordUserTurn(redacted, now)
	if len(added) > 0 {
		log.Printf("brain: new topics discovered: %s", strings.Join(added, ", "))
	}

	reply := ""
	if g.remote != nil {
		window := g.book.Window(now)
		text, err := g.remote.complete(ctx, g.persona, window)
		if err != nil {
			g.countError(err)
			log.Printf("brain: remote failed, using rule-based reply: %v", err)
		} else {
			reply = text
		}
	}
	if reply == "" {
		reply = g.fb.reply(redacted, stage, g.book.Topics())
	}

	g.book.RecordAssistantTurn(reply, time.Now())
	return reply
}

// Memory exposes the book for inspection endpoints and lifecycle hooks.
func (g *Generator) Memory() *memory.Book { return g.book }

// Suspend kicks a background flush; called when the visitor walks away.
func (g *Generator) Suspend() { g.book.FlushAsync() }

// Close flushes synchronously; called on shutdown.
func (g *Generator) Close(ctx context.Context) error { return g.book.FlushNow(ctx) }

func (g *Generator) countError(err error) {
	if g.metrics == nil {
		return
	}
	code := reliability.ErrorLabel(err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		code = "breaker_open"
	}
	g.metrics.ProviderErrors.WithLabelValues("brain", code).Inc()
}
