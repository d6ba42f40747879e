package audio

import (
	"math"
	"time"
)

const (
	fallbackToneHz        = 440.0
	fallbackToneAmplitude = 9000
	fallbackPerRune       = 45 * time.Millisecond
	fallbackMinDuration   = 400 * time.Millisecond
	fallbackMaxDuration   = 6 * time.Second
)

// Tone synthesizes a mono sine tone of the given frequency and duration.
func Tone(freqHz float64, d time.Duration, sampleRate int) Clip {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if d <= 0 {
		d = fallbackMinDuration
	}
	n := int(float64(sampleRate) * d.Seconds())
	samples := make([]int16, n)
	step := 2 * math.Pi * freqHz / float64(sampleRate)
	for i := range samples {
		samples[i] = int16(fallbackToneAmplitude * math.Sin(step*float64(i)))
	}
	return Clip{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

// FallbackTone builds the degraded-mode beep used when synthesis is
// unavailable. Duration scales with the length of the text that would have
// been spoken so the conversation rhythm stays plausible.
func FallbackTone(text string, sampleRate int) Clip {
	d := time.Duration(len([]rune(text))) * fallbackPerRune
	if d < fallbackMinDuration {
		d = fallbackMinDuration
	}
	if d > fallbackMaxDuration {
		d = fallbackMaxDuration
	}
	return Tone(fallbackToneHz, d, sampleRate)
}
