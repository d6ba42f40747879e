package conversation

import (
	"context"
	"time"

	"github.com/arborworks/arbor/internal/synth"
)

// Player delivers speech to the installation's output hardware.
type Player interface {
	Play(ctx context.Context, sp synth.Speech) error
}

// TimedPlayer holds the line for the speech duration without touching real
// hardware. It is the default when no audio output is wired up, and keeps
// the state machine honest about how long the sculpture is talking.
type TimedPlayer struct{}

func (TimedPlayer) Play(ctx context.Context, sp synth.Speech) error {
	d := sp.Duration
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
