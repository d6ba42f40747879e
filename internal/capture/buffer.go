package capture

import (
	"sync"
	"time"

	"github.com/arborworks/arbor/internal/audio"
)

// Buffer accumulates PCM16 samples for one recording. Capacity is fixed at
// construction so a running capture never allocates; writes past capacity
// are dropped and reported.
type Buffer struct {
	mu         sync.Mutex
	samples    []int16
	capacity   int
	sampleRate int
}

func NewBuffer(sampleRate int, maxDuration time.Duration) *Buffer {
	capacity := int(float64(sampleRate) * maxDuration.Seconds())
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		samples:    make([]int16, 0, capacity),
		capacity:   capacity,
		sampleRate: sampleRate,
	}
}

// Append adds samples and reports whether the buffer is now full.
func (b *Buffer) Append(samples []int16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.capacity - len(b.samples)
	if room > 0 {
		if len(samples) > room {
			samples = samples[:room]
		}
		b.samples = append(b.samples, samples...)
	}
	return len(b.samples) >= b.capacity
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// TailMeanAbs measures the loudness of the most recent span; the silence
// detector polls this to decide when the visitor stopped talking.
func (b *Buffer) TailMeanAbs(span time.Duration) float64 {
	n := int(float64(b.sampleRate) * span.Seconds())
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.samples) {
		n = len(b.samples)
	}
	return audio.MeanAbsAmplitude(b.samples[len(b.samples)-n:])
}

// Clip returns an exact-length copy of everything recorded so far.
func (b *Buffer) Clip() audio.Clip {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return audio.Clip{Samples: out, SampleRate: b.sampleRate, Channels: 1}
}
