package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/arborworks/arbor/internal/audio"
	"github.com/arborworks/arbor/internal/brain"
	"github.com/arborworks/arbor/internal/capture"
	"github.com/arborworks/arbor/internal/memory"
	"github.com/arborworks/arbor/internal/synth"
)

type memStore struct{}

func (memStore) Load(_ context.Context, id string) memory.Memory { return memory.NewMemory(id) }
func (memStore) Save(context.Context, memory.Memory) error       { return nil }
func (memStore) Clear(context.Context, string) error             { return nil }
func (memStore) Close() error                                    { return nil }

type stubSTT struct {
	valid bool
	text  string
}

func (s stubSTT) Validate(audio.Clip) bool                      { return s.valid }
func (s stubSTT) Transcribe(context.Context, audio.Clip) string { return s.text }

type instantPlayer struct{}

func (instantPlayer) Play(context.Context, synth.Speech) error { return nil }

func testConfig() Config {
	return Config{
		SampleRate:        16000,
		MaxRecording:      2 * time.Second,
		SilenceLevel:      250,
		SilenceHold:       50 * time.Millisecond,
		SilencePoll:       10 * time.Millisecond,
		WarmupAtFraction:  0.5,
		DeviceRetryPeriod: 20 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, device capture.Device, stt stubSTT) (*Orchestrator, <-chan Event) {
	t.Helper()
	book := memory.NewBook(context.Background(), memStore{}, memory.DefaultTopicTable(), "v", 12, 100)
	gen := brain.NewGenerator(brain.RemoteConfig{}, "persona", book, nil)
	tts := synth.NewSynthesizer(synth.Config{}, 16000, nil)

	o := NewOrchestrator(testConfig(), device, stt, gen, tts, instantPlayer{}, nil, NewNotifier())
	events, cancelSub := o.Notifier().Subscribe()
	t.Cleanup(cancelSub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go o.Run(ctx)
	return o, events
}

// waitForTransition consumes events until one lands in the wanted state and
// returns its trigger.
func waitForTransition(t *testing.T, events <-chan Event, to State) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == "transition" && ev.To == to.String() {
				return ev.Trigger
			}
		case <-deadline:
			t.Fatalf("never reached state %s", to)
		}
	}
}

func assertNoTransitionTo(t *testing.T, events <-chan Event, banned []State, within time.Duration) {
	t.Helper()
	timeout := time.After(within)
	for {
		select {
		case ev := <-events:
			if ev.Type != "transition" {
				continue
			}
			for _, s := range banned {
				if ev.To == s.String() {
					t.Fatalf("unexpected transition to %s (%s)", ev.To, ev.Trigger)
				}
			}
		case <-timeout:
			return
		}
	}
}

func loudDevice() *capture.MockDevice {
	var frames [][]int16
	for i := 0; i < 200; i++ {
		frames = append(frames, capture.Frame(3000, 160))
	}
	return capture.NewMockDevice(frames, time.Millisecond)
}

func quietAfterSpeechDevice() *capture.MockDevice {
	var frames [][]int16
	for i := 0; i < 10; i++ {
		frames = append(frames, capture.Frame(3000, 160))
	}
	for i := 0; i < 200; i++ {
		frames = append(frames, capture.Frame(0, 160))
	}
	return capture.NewMockDevice(frames, time.Millisecond)
}

func TestFullTurnHappyPath(t *testing.T) {
	o, events := newTestOrchestrator(t, loudDevice(), stubSTT{valid: true, text: "Zdravo, drvo."})

	o.ZoneEnter()
	if trigger := waitForTransition(t, events, StateReady); trigger != string(TriggerZoneEnter) {
		t.Fatalf("ready trigger = %q, want zone_enter", trigger)
	}

	o.ButtonPress()
	waitForTransition(t, events, StateRecording)
	time.Sleep(60 * time.Millisecond)
	o.ButtonRelease()

	if trigger := waitForTransition(t, events, StateProcessing); trigger != string(TriggerButtonRelease) {
		t.Fatalf("processing trigger = %q, want button_release", trigger)
	}
	waitForTransition(t, events, StateSpeaking)
	if trigger := waitForTransition(t, events, StateReady); trigger != string(TriggerSpeechDone) {
		t.Fatalf("ready trigger = %q, want speech_done", trigger)
	}
}

func TestSilenceEndpointing(t *testing.T) {
	o, events := newTestOrchestrator(t, quietAfterSpeechDevice(), stubSTT{valid: true, text: "Kako si?"})

	o.ZoneEnter()
	waitForTransition(t, events, StateReady)
	o.ButtonPress()
	waitForTransition(t, events, StateRecording)

	if trigger := waitForTransition(t, events, StateProcessing); trigger != string(TriggerSilence) {
		t.Fatalf("processing trigger = %q, want silence", trigger)
	}
}

func TestZoneExitCancelsRecording(t *testing.T) {
	o, events := newTestOrchestrator(t, loudDevice(), stubSTT{valid: true, text: "Zdravo."})

	o.ZoneEnter()
	waitForTransition(t, events, StateReady)
	o.ButtonPress()
	waitForTransition(t, events, StateRecording)

	o.ZoneExit()
	if trigger := waitForTransition(t, events, StateIdle); trigger != string(TriggerZoneExit) {
		t.Fatalf("idle trigger = %q, want zone_exit", trigger)
	}
	assertNoTransitionTo(t, events, []State{StateProcessing, StateSpeaking}, 150*time.Millisecond)
}

func TestInvalidAudioReturnsToReady(t *testing.T) {
	o, events := newTestOrchestrator(t, loudDevice(), stubSTT{valid: false})

	o.ZoneEnter()
	waitForTransition(t, events, StateReady)
	o.ButtonPress()
	waitForTransition(t, events, StateRecording)
	o.ButtonRelease()

	if trigger := waitForTransition(t, events, StateReady); trigger != string(TriggerInvalidAudio) {
		t.Fatalf("ready trigger = %q, want invalid_audio", trigger)
	}
}

func TestEmptyTranscriptReturnsToReady(t *testing.T) {
	o, events := newTestOrchestrator(t, loudDevice(), stubSTT{valid: true, text: ""})

	o.ZoneEnter()
	waitForTransition(t, events, StateReady)
	o.ButtonPress()
	waitForTransition(t, events, StateRecording)
	time.Sleep(30 * time.Millisecond)
	o.ButtonRelease()
	waitForTransition(t, events, StateProcessing)

	if trigger := waitForTransition(t, events, StateReady); trigger != string(TriggerEmptyTranscript) {
		t.Fatalf("ready trigger = %q, want empty_transcript", trigger)
	}
}

func TestDeviceUnavailableDelaysReady(t *testing.T) {
	device := loudDevice()
	device.SetAvailable(false)
	o, events := newTestOrchestrator(t, device, stubSTT{valid: true, text: "Zdravo."})

	o.ZoneEnter()
	assertNoTransitionTo(t, events, []State{StateReady}, 50*time.Millisecond)
	if got := o.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle while the device is down", got)
	}

	device.SetAvailable(true)
	if trigger := waitForTransition(t, events, StateReady); trigger != string(TriggerDeviceReady) {
		t.Fatalf("ready trigger = %q, want device_ready", trigger)
	}
}

func TestButtonPressIgnoredWhileIdle(t *testing.T) {
	o, events := newTestOrchestrator(t, loudDevice(), stubSTT{valid: true, text: "Zdravo."})

	o.ButtonPress()
	assertNoTransitionTo(t, events, []State{StateRecording}, 50*time.Millisecond)
	if got := o.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}
