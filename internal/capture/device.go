package capture

import (
	"context"
	"time"

	"github.com/arborworks/arbor/internal/audio"
)

// Device is a microphone source. Available is polled while idle so the
// installation can come up before its audio hardware does.
type Device interface {
	Available() bool
	Start(ctx context.Context, sampleRate int, maxDuration time.Duration) (Session, error)
}

// Session is one in-progress recording. The device feeds the buffer in the
// background until the context is canceled or Stop is called. Stop is
// idempotent and returns the trimmed clip.
type Session interface {
	Buffer() *Buffer
	Stop() audio.Clip
}
