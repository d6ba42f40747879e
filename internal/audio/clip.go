package audio

import (
	"encoding/binary"
	"time"
)

// Clip is a buffer of PCM16 mono audio samples.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || len(c.Samples) == 0 {
		return 0
	}
	frames := len(c.Samples)
	if c.Channels > 1 {
		frames /= c.Channels
	}
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// PCMBytes returns the samples as little-endian PCM16 bytes.
func (c Clip) PCMBytes() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PeakAmplitude returns the largest absolute sample value in the clip.
func PeakAmplitude(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// MeanAbsAmplitude returns the mean absolute sample value, 0 for empty input.
func MeanAbsAmplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return float64(sum) / float64(len(samples))
}
