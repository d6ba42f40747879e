package conversation

import "github.com/arborworks/arbor/internal/synth"

// Trigger names the cause of a transition or discard. Values double as the
// metric label, so they stay snake_case.
type Trigger string

const (
	TriggerZoneEnter       Trigger = "zone_enter"
	TriggerZoneExit        Trigger = "zone_exit"
	TriggerButtonPress     Trigger = "button_press"
	TriggerButtonRelease   Trigger = "button_release"
	TriggerSilence         Trigger = "silence"
	TriggerMaxDuration     Trigger = "max_duration"
	TriggerDeviceReady     Trigger = "device_ready"
	TriggerInvalidAudio    Trigger = "invalid_audio"
	TriggerEmptyTranscript Trigger = "empty_transcript"
	TriggerTranscript      Trigger = "transcript"
	TriggerReply           Trigger = "reply"
	TriggerSpeechReady     Trigger = "speech_ready"
	TriggerSpeechDone      Trigger = "speech_done"
)

// event is one message on the orchestrator loop. External inputs and
// async completions share the queue; token ties a completion to the turn
// that started it.
type event struct {
	trigger Trigger
	token   uint64
	text    string
	speech  synth.Speech
}
