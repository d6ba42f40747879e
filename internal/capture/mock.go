package capture

import (
	"context"
	"sync"
	"time"

	"github.com/arborworks/arbor/internal/audio"
)

// MockDevice feeds scripted frames into the buffer on a fixed cadence. Used
// when no real microphone is wired up, and by tests that need deterministic
// captures.
type MockDevice struct {
	mu        sync.Mutex
	available bool
	frames    [][]int16
	interval  time.Duration
}

func NewMockDevice(frames [][]int16, interval time.Duration) *MockDevice {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &MockDevice{available: true, frames: frames, interval: interval}
}

// SetAvailable toggles the simulated hardware presence.
func (d *MockDevice) SetAvailable(ok bool) {
	d.mu.Lock()
	d.available = ok
	d.mu.Unlock()
}

func (d *MockDevice) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

func (d *MockDevice) Start(ctx context.Context, sampleRate int, maxDuration time.Duration) (Session, error) {
	d.mu.Lock()
	frames := d.frames
	interval := d.interval
	d.mu.Unlock()

	s := &mockSession{
		buf:  NewBuffer(sampleRate, maxDuration),
		done: make(chan struct{}),
	}
	go s.feed(ctx, frames, interval)
	return s, nil
}

// Frame builds n identical samples, handy for scripting loud and quiet spans.
func Frame(amplitude int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

type mockSession struct {
	buf      *Buffer
	done     chan struct{}
	stopOnce sync.Once
}

func (s *mockSession) feed(ctx context.Context, frames [][]int16, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for _, frame := range frames {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if s.buf.Append(frame) {
				return
			}
		}
	}
}

func (s *mockSession) Buffer() *Buffer { return s.buf }

func (s *mockSession) Stop() audio.Clip {
	s.stopOnce.Do(func() { close(s.done) })
	return s.buf.Clip()
}
