package conversation

// State is the sculpture's interaction phase. Transitions happen only on
// the orchestrator's event loop.
type State int

const (
	StateIdle State = iota
	StateReady
	StateRecording
	StateProcessing
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
