package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config contains all runtime settings for the installation voice core.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
	AllowAnyOrigin   bool

	// VisitorID identifies the persisted memory record. One installation,
	// one visitor identity.
	VisitorID              string
	VisitInactivityTimeout time.Duration

	DataDir          string
	MemoryFile       string
	DatabaseURL      string
	MemoryFlushEvery int
	ContextTurns     int
	TopicsFile       string

	Language     string
	PersonaStyle string

	OpenAIAPIKey string

	STTBaseURL         string
	STTModel           string
	STTPrompt          string
	STTTimeout         time.Duration
	MinRecordingLength time.Duration
	SilencePeak        int

	BrainBaseURL     string
	BrainModel       string
	BrainTemperature float64
	BrainMaxTokens   int
	BrainTimeout     time.Duration

	TTSBaseURL     string
	TTSModel       string
	TTSVoice       string
	TTSSpeed       float64
	TTSTimeout     time.Duration
	WarmupCooldown time.Duration

	SampleRate        int
	MaxRecording      time.Duration
	SilenceLevel      float64
	SilenceHold       time.Duration
	SilencePoll       time.Duration
	WarmupAtFraction  float64
	DeviceRetryPeriod time.Duration
}

// Load reads the optional .env file, layers process environment variables on
// top, and applies safe defaults. The .env format is KEY=value lines with
// #-comments and optional quoting.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit credential file path.
func LoadFile(envFile string) (Config, error) {
	k := koanf.New(".")

	keyFn := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}

	// Credential file first so the process environment wins.
	_ = k.Load(file.Provider(envFile), dotenv.ParserEnv("", ".", keyFn))
	if err := k.Load(env.Provider("", ".", keyFn), nil); err != nil {
		return Config{}, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := Config{
		BindAddr:         stringOr(k, "app.bind.addr", ":8080"),
		MetricsNamespace: stringOr(k, "app.metrics.namespace", "arbor"),
		AllowAnyOrigin:   k.Bool("app.allow.any.origin"),

		VisitorID: stringOr(k, "app.visitor.id", "installation"),

		DataDir:     stringOr(k, "memory.data.dir", ".arbor"),
		MemoryFile:  stringOr(k, "memory.file", "memory.json"),
		DatabaseURL: strings.TrimSpace(k.String("database.url")),
		TopicsFile:  strings.TrimSpace(k.String("memory.topics.file")),

		Language: stringOr(k, "app.language", "sr"),
		PersonaStyle: stringOr(k, "app.persona.style",
			"Ti si Arbor, drvo-skulptura koja razgovara sa posetiocima. "+
				"Govoris toplo, pomalo zagonetno, kratkim recenicama."),

		OpenAIAPIKey: strings.TrimSpace(k.String("openai.api.key")),

		STTBaseURL: stringOr(k, "stt.base.url", "https://api.openai.com/v1/audio/transcriptions"),
		STTModel:   stringOr(k, "stt.model", "whisper-1"),
		STTPrompt: stringOr(k, "stt.prompt",
			"Razgovor posetioca sa drvetom-skulpturom u galeriji."),

		BrainBaseURL: stringOr(k, "brain.base.url", "https://api.openai.com/v1/chat/completions"),
		BrainModel:   stringOr(k, "brain.model", "gpt-4o-mini"),

		TTSBaseURL: stringOr(k, "tts.base.url", "https://api.openai.com/v1/audio/speech"),
		TTSModel:   stringOr(k, "tts.model", "tts-1"),
		TTSVoice:   stringOr(k, "tts.voice", "onyx"),

		ShutdownTimeout:        15 * time.Second,
		VisitInactivityTimeout: 2 * time.Minute,
		MemoryFlushEvery:       3,
		ContextTurns:           12,
		STTTimeout:             20 * time.Second,
		MinRecordingLength:     600 * time.Millisecond,
		SilencePeak:            500,
		BrainTemperature:       0.8,
		BrainMaxTokens:         150,
		BrainTimeout:           30 * time.Second,
		TTSSpeed:               0.95,
		TTSTimeout:             20 * time.Second,
		WarmupCooldown:         30 * time.Second,
		SampleRate:             16000,
		MaxRecording:           15 * time.Second,
		SilenceLevel:           250,
		SilenceHold:            1500 * time.Millisecond,
		SilencePoll:            200 * time.Millisecond,
		WarmupAtFraction:       0.7,
		DeviceRetryPeriod:      3 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationOr(k, "app.shutdown.timeout", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.VisitInactivityTimeout, err = durationOr(k, "app.visit.inactivity.timeout", cfg.VisitInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MemoryFlushEvery, err = intOr(k, "memory.flush.every", cfg.MemoryFlushEvery); err != nil {
		return Config{}, err
	}
	if cfg.ContextTurns, err = intOr(k, "memory.context.turns", cfg.ContextTurns); err != nil {
		return Config{}, err
	}
	if cfg.STTTimeout, err = durationOr(k, "stt.timeout", cfg.STTTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MinRecordingLength, err = durationOr(k, "stt.min.recording", cfg.MinRecordingLength); err != nil {
		return Config{}, err
	}
	if cfg.SilencePeak, err = intOr(k, "stt.silence.peak", cfg.SilencePeak); err != nil {
		return Config{}, err
	}
	if cfg.BrainTemperature, err = floatOr(k, "brain.temperature", cfg.BrainTemperature); err != nil {
		return Config{}, err
	}
	if cfg.BrainMaxTokens, err = intOr(k, "brain.max.tokens", cfg.BrainMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.BrainTimeout, err = durationOr(k, "brain.timeout", cfg.BrainTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TTSSpeed, err = floatOr(k, "tts.speed", cfg.TTSSpeed); err != nil {
		return Config{}, err
	}
	if cfg.TTSTimeout, err = durationOr(k, "tts.timeout", cfg.TTSTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WarmupCooldown, err = durationOr(k, "tts.warmup.cooldown", cfg.WarmupCooldown); err != nil {
		return Config{}, err
	}
	if cfg.SampleRate, err = intOr(k, "capture.sample.rate", cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if cfg.MaxRecording, err = durationOr(k, "capture.max.recording", cfg.MaxRecording); err != nil {
		return Config{}, err
	}
	if cfg.SilenceLevel, err = floatOr(k, "capture.silence.level", cfg.SilenceLevel); err != nil {
		return Config{}, err
	}
	if cfg.SilenceHold, err = durationOr(k, "capture.silence.hold", cfg.SilenceHold); err != nil {
		return Config{}, err
	}
	if cfg.SilencePoll, err = durationOr(k, "capture.silence.poll", cfg.SilencePoll); err != nil {
		return Config{}, err
	}
	if cfg.WarmupAtFraction, err = floatOr(k, "capture.warmup.fraction", cfg.WarmupAtFraction); err != nil {
		return Config{}, err
	}
	if cfg.DeviceRetryPeriod, err = durationOr(k, "capture.device.retry", cfg.DeviceRetryPeriod); err != nil {
		return Config{}, err
	}

	if cfg.MemoryFlushEvery <= 0 {
		return Config{}, fmt.Errorf("MEMORY_FLUSH_EVERY must be positive")
	}
	if cfg.ContextTurns <= 0 {
		return Config{}, fmt.Errorf("MEMORY_CONTEXT_TURNS must be positive")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.MaxRecording <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_MAX_RECORDING must be positive")
	}
	if cfg.MinRecordingLength <= 0 || cfg.MinRecordingLength >= cfg.MaxRecording {
		return Config{}, fmt.Errorf("STT_MIN_RECORDING must be positive and below CAPTURE_MAX_RECORDING")
	}
	if cfg.WarmupAtFraction <= 0 || cfg.WarmupAtFraction >= 1 {
		return Config{}, fmt.Errorf("CAPTURE_WARMUP_FRACTION must be in (0, 1)")
	}
	if cfg.SilencePeak < 0 {
		return Config{}, fmt.Errorf("STT_SILENCE_PEAK must be >= 0")
	}

	return cfg, nil
}

func stringOr(k *koanf.Koanf, key, fallback string) string {
	v := strings.TrimSpace(k.String(key))
	if v == "" {
		return fallback
	}
	return v
}

func intOr(k *koanf.Koanf, key string, fallback int) (int, error) {
	v := strings.TrimSpace(k.String(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatOr(k *koanf.Koanf, key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(k.String(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func durationOr(k *koanf.Koanf, key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(k.String(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
