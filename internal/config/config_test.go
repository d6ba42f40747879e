package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearCoreEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_BIND_ADDR", "OPENAI_API_KEY", "DATABASE_URL",
		"BRAIN_MODEL", "BRAIN_TEMPERATURE", "MEMORY_FLUSH_EVERY",
		"CAPTURE_MAX_RECORDING", "CAPTURE_WARMUP_FRACTION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFileDefaults(t *testing.T) {
	clearCoreEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.OpenAIAPIKey != "" {
		t.Fatalf("OpenAIAPIKey = %q, want empty default", cfg.OpenAIAPIKey)
	}
	if cfg.MemoryFlushEvery != 3 {
		t.Fatalf("MemoryFlushEvery = %d, want 3", cfg.MemoryFlushEvery)
	}
	if cfg.MaxRecording != 15*time.Second {
		t.Fatalf("MaxRecording = %v, want 15s", cfg.MaxRecording)
	}
	if cfg.Language != "sr" {
		t.Fatalf("Language = %q, want %q", cfg.Language, "sr")
	}
}

func TestLoadFileParsesCredentialFile(t *testing.T) {
	clearCoreEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	contents := "# installation credentials\n" +
		"OPENAI_API_KEY=\"sk-test-123\"\n" +
		"BRAIN_MODEL=gpt-4o\n" +
		"CAPTURE_MAX_RECORDING=10s\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-test-123" {
		t.Fatalf("OpenAIAPIKey = %q, want %q", cfg.OpenAIAPIKey, "sk-test-123")
	}
	if cfg.BrainModel != "gpt-4o" {
		t.Fatalf("BrainModel = %q, want %q", cfg.BrainModel, "gpt-4o")
	}
	if cfg.MaxRecording != 10*time.Second {
		t.Fatalf("MaxRecording = %v, want 10s", cfg.MaxRecording)
	}
}

func TestLoadFileEnvOverridesFile(t *testing.T) {
	clearCoreEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BRAIN_MODEL=from-file\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("BRAIN_MODEL", "from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.BrainModel != "from-env" {
		t.Fatalf("BrainModel = %q, want %q", cfg.BrainModel, "from-env")
	}
}

func TestLoadFileRejectsBadWarmupFraction(t *testing.T) {
	clearCoreEnv(t)
	t.Setenv("CAPTURE_WARMUP_FRACTION", "1.5")

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("LoadFile() should reject warm-up fraction outside (0, 1)")
	}
}

func TestLoadFileRejectsUnparsableNumber(t *testing.T) {
	clearCoreEnv(t)
	t.Setenv("MEMORY_FLUSH_EVERY", "sometimes")

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("LoadFile() should reject a non-numeric flush cadence")
	}
}
