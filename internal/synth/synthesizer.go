package synth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/arborworks/arbor/internal/audio"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/reliability"
)

// Speech is one utterance ready for playback. When the remote service
// answers, Data holds its encoded audio; otherwise Data is a WAV-wrapped
// fallback tone. Duration is always set so a player can pace itself.
type Speech struct {
	Data     []byte
	Format   string
	Duration time.Duration
	Fallback bool
}

// Synthesizer turns reply text into speech. It never fails the caller: any
// upstream problem degrades to an audible tone whose length tracks the text,
// so the visitor always hears that the sculpture answered.
type Synthesizer struct {
	cfg        Config
	remote     *remoteClient
	metrics    *observability.Metrics
	warm       rate.Sometimes
	sampleRate int
	offline    bool
}

func NewSynthesizer(cfg Config, sampleRate int, metrics *observability.Metrics) *Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	cooldown := cfg.WarmupCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	offline := strings.TrimSpace(cfg.APIKey) == ""
	s := &Synthesizer{
		cfg:        cfg,
		metrics:    metrics,
		warm:       rate.Sometimes{Interval: cooldown},
		sampleRate: sampleRate,
		offline:    offline,
	}
	if offline {
		log.Printf("synth: no API key configured, using fallback tones")
	} else {
		s.remote = newRemoteClient(cfg)
	}
	return s
}

// Speak synthesizes text, falling back to a tone when the service cannot.
func (s *Synthesizer) Speak(ctx context.Context, text string) Speech {
	if s.remote != nil {
		data, err := s.remote.synthesize(ctx, text)
		if err != nil {
			s.countError(err)
			log.Printf("synth: remote failed, using fallback tone: %v", err)
		} else {
			return Speech{
				Data:     data,
				Format:   s.cfg.Format,
				Duration: estimateDuration(text),
			}
		}
	}
	clip := audio.FallbackTone(text, s.sampleRate)
	data, err := audio.EncodeWAV(clip)
	if err != nil {
		// Only reachable with an empty clip, which FallbackTone never produces.
		data = nil
	}
	return Speech{
		Data:     data,
		Format:   "wav",
		Duration: clip.Duration(),
		Fallback: true,
	}
}

// WarmUp fires a throwaway request so the first real synthesis after a pause
// does not pay the cold-start cost. Calls are rate limited and failures are
// logged only.
func (s *Synthesizer) WarmUp(ctx context.Context) {
	if s.remote == nil {
		return
	}
	s.warm.Do(func() {
		if _, err := s.remote.synthesize(ctx, "..."); err != nil {
			log.Printf("synth: warm-up failed: %v", err)
		}
	})
}

func (s *Synthesizer) countError(err error) {
	if s.metrics == nil {
		return
	}
	code := reliability.ErrorLabel(err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		code = "breaker_open"
	}
	s.metrics.ProviderErrors.WithLabelValues("tts", code).Inc()
}

// estimateDuration guesses playback length from text length. The remote
// formats are not parsed, so the player paces on this estimate.
func estimateDuration(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * 60 * time.Millisecond
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
