package app

import (
	"context"
	"fmt"
	"time"

	"github.com/arborworks/arbor/internal/brain"
	"github.com/arborworks/arbor/internal/capture"
	"github.com/arborworks/arbor/internal/config"
	"github.com/arborworks/arbor/internal/conversation"
	"github.com/arborworks/arbor/internal/httpapi"
	"github.com/arborworks/arbor/internal/memory"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/synth"
	"github.com/arborworks/arbor/internal/transcribe"
	"github.com/arborworks/arbor/internal/visit"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *conversation.Orchestrator
	Generator    *brain.Generator
	Visits       *visit.Manager
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to flush memory and release
	// external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.DataDir, cfg.MemoryFile)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	table := memory.DefaultTopicTable()
	if cfg.TopicsFile != "" {
		table, err = memory.LoadTopicTable(cfg.TopicsFile)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("topic table load failed: %w", err)
		}
	}

	book := memory.NewBook(ctx, store, table, cfg.VisitorID, cfg.ContextTurns, cfg.MemoryFlushEvery)

	gen := brain.NewGenerator(brain.RemoteConfig{
		BaseURL:     cfg.BrainBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.BrainModel,
		Temperature: cfg.BrainTemperature,
		MaxTokens:   cfg.BrainMaxTokens,
		Timeout:     cfg.BrainTimeout,
	}, cfg.PersonaStyle, book, metrics)

	stt := transcribe.NewClient(transcribe.Config{
		BaseURL:     cfg.STTBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.STTModel,
		Language:    cfg.Language,
		Prompt:      cfg.STTPrompt,
		Timeout:     cfg.STTTimeout,
		MinDuration: cfg.MinRecordingLength,
		SilencePeak: cfg.SilencePeak,
	}, metrics)

	tts := synth.NewSynthesizer(synth.Config{
		BaseURL:        cfg.TTSBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.TTSModel,
		Voice:          cfg.TTSVoice,
		Speed:          cfg.TTSSpeed,
		Timeout:        cfg.TTSTimeout,
		WarmupCooldown: cfg.WarmupCooldown,
	}, cfg.SampleRate, metrics)

	orch := conversation.NewOrchestrator(conversation.Config{
		SampleRate:        cfg.SampleRate,
		MaxRecording:      cfg.MaxRecording,
		SilenceLevel:      cfg.SilenceLevel,
		SilenceHold:       cfg.SilenceHold,
		SilencePoll:       cfg.SilencePoll,
		WarmupAtFraction:  cfg.WarmupAtFraction,
		DeviceRetryPeriod: cfg.DeviceRetryPeriod,
	}, scriptedDevice(cfg.SampleRate), stt, gen, tts, nil, metrics, conversation.NewNotifier())

	visits := visit.NewManager(cfg.VisitInactivityTimeout)
	visits.SetExpireHook(func(v visit.Visit) {
		// The proximity sensor missed the exit; synthesize it so memory
		// still gets flushed and the machine returns to idle.
		orch.ZoneExit()
		metrics.Events.WithLabelValues("visit_expired").Inc()
	})

	api := httpapi.New(cfg, orch, gen, visits, metrics)

	cleanup := func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		flushErr := gen.Close(flushCtx)
		closeErr := store.Close()
		if flushErr != nil {
			return flushErr
		}
		return closeErr
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orch,
		Generator:    gen,
		Visits:       visits,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

// scriptedDevice stands in for the installation's microphone: two seconds
// of voiced frames followed by quiet, so silence endpointing fires and the
// whole loop can be exercised without audio hardware.
func scriptedDevice(sampleRate int) capture.Device {
	frame := sampleRate / 10
	var frames [][]int16
	for i := 0; i < 20; i++ {
		frames = append(frames, capture.Frame(3000, frame))
	}
	for i := 0; i < 20; i++ {
		frames = append(frames, capture.Frame(40, frame))
	}
	return capture.NewMockDevice(frames, 100*time.Millisecond)
}
