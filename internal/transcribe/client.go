package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/arborworks/arbor/internal/audio"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/reliability"
)

// Transcriber turns a captured clip into text. Implementations never fail
// the caller: any upstream problem degrades to mock text, so the state
// machine can always progress.
type Transcriber interface {
	Validate(clip audio.Clip) bool
	Transcribe(ctx context.Context, clip audio.Clip) string
}

// Config holds the remote recognition settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Language    string
	Prompt      string
	Timeout     time.Duration
	MinDuration time.Duration
	SilencePeak int
}

// Client sends WAV-wrapped audio to a speech-recognition endpoint.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	mock    *MockTranscriber
	metrics *observability.Metrics
	offline bool
}

func NewClient(cfg Config, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	offline := strings.TrimSpace(cfg.APIKey) == ""
	if offline {
		log.Printf("transcribe: no API key configured, using mock transcription")
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "transcribe",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		mock:    NewMockTranscriber(),
		metrics: metrics,
		offline: offline,
	}
}

// Validate rejects clips that are too short or too quiet to be worth a
// network round trip.
func (c *Client) Validate(clip audio.Clip) bool {
	if clip.Duration() < c.cfg.MinDuration {
		return false
	}
	return audio.PeakAmplitude(clip.Samples) > c.cfg.SilencePeak
}

// Transcribe returns recognized text, or a rotating mock phrase when the
// service is unavailable. An empty string means the service answered but
// heard nothing.
func (c *Client) Transcribe(ctx context.Context, clip audio.Clip) string {
	if c.offline {
		return c.mock.Next()
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.transcribeWithRetry(ctx, clip)
	})
	if err != nil {
		c.countError(err)
		log.Printf("transcribe: remote failed, using mock phrase: %v", err)
		return c.mock.Next()
	}
	return res.(string)
}

// transcribeWithRetry retries once on a retryable HTTP status. Transport
// errors and hard 4xx responses are not worth a second round trip.
func (c *Client) transcribeWithRetry(ctx context.Context, clip audio.Clip) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.transcribeRemote(ctx, clip)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var se *statusError
		if !errors.As(err, &se) || !reliability.IsRetryableHTTPStatus(se.code) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, time.Second)):
		}
	}
	return "", lastErr
}

type statusError struct {
	code    int
	snippet string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("stt http status %d: %s", e.code, e.snippet)
}

func (c *Client) transcribeRemote(ctx context.Context, clip audio.Clip) (string, error) {
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "capture.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", c.cfg.Model)
	if c.cfg.Language != "" {
		_ = mw.WriteField("language", c.cfg.Language)
	}
	if c.cfg.Prompt != "" {
		_ = mw.WriteField("prompt", c.cfg.Prompt)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &statusError{code: res.StatusCode, snippet: string(snippet)}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

func (c *Client) countError(err error) {
	if c.metrics == nil {
		return
	}
	code := reliability.ErrorLabel(err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		code = "breaker_open"
	}
	c.metrics.ProviderErrors.WithLabelValues("stt", code).Inc()
}
