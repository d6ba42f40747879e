package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arborworks/arbor/internal/audio"
)

func voicedClip(d time.Duration) audio.Clip {
	n := int(16000 * d.Seconds())
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 3000
	}
	return audio.Clip{Samples: samples, SampleRate: 16000, Channels: 1}
}

func testConfig(url string) Config {
	return Config{
		BaseURL:     url,
		APIKey:      "sk-test",
		Model:       "whisper-1",
		Language:    "sr",
		Timeout:     2 * time.Second,
		MinDuration: 600 * time.Millisecond,
		SilencePeak: 500,
	}
}

func TestValidateRejectsShortClip(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	if c.Validate(voicedClip(300 * time.Millisecond)) {
		t.Fatalf("clip below the minimum length should be invalid")
	}
	if !c.Validate(voicedClip(time.Second)) {
		t.Fatalf("a voiced one-second clip should be valid")
	}
}

func TestValidateRejectsQuietClip(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	quiet := audio.Clip{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1}
	for i := range quiet.Samples {
		quiet.Samples[i] = 100
	}
	if c.Validate(quiet) {
		t.Fatalf("a clip below the silence peak should be invalid")
	}
}

func TestTranscribeOfflineRotatesMockPhrases(t *testing.T) {
	c := NewClient(Config{MinDuration: time.Millisecond}, nil)
	first := c.Transcribe(context.Background(), voicedClip(time.Second))
	second := c.Transcribe(context.Background(), voicedClip(time.Second))
	if first == "" || second == "" {
		t.Fatalf("mock phrases must never be empty")
	}
	if first == second {
		t.Fatalf("mock phrases should rotate, got %q twice", first)
	}
}

func TestTranscribeRemoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("multipart parse error: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "  Zdravo, drvo.  "}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	got := c.Transcribe(context.Background(), voicedClip(time.Second))
	if got != "Zdravo, drvo." {
		t.Fatalf("Transcribe() = %q, want trimmed recognized text", got)
	}
}

func TestTranscribeServerErrorFallsBackToMock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	got := c.Transcribe(context.Background(), voicedClip(time.Second))
	if got == "" {
		t.Fatalf("degraded transcription must not be empty")
	}
}

func TestTranscribeRetriesRetryableStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "druga runda"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	got := c.Transcribe(context.Background(), voicedClip(time.Second))
	if got != "druga runda" {
		t.Fatalf("Transcribe() = %q, want the retried result", got)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
