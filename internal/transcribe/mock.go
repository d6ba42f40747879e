package transcribe

import "sync/atomic"

// mockPhrases are plausible visitor utterances in the installation's target
// language, rotated so degraded mode still produces varied conversations.
var mockPhrases = []string{
	"Zdravo, drvo.",
	"Kako si danas?",
	"Da li me cujes?",
	"Pricaj mi o sumi.",
	"Lepo je ovde kod tebe.",
	"Sta sanjas kad nema nikoga?",
}

// MockTranscriber returns a fixed rotating set of phrases. Used when the
// recognition service is unreachable or no credential is configured.
type MockTranscriber struct {
	next atomic.Uint64
}

func NewMockTranscriber() *MockTranscriber { return &MockTranscriber{} }

func (m *MockTranscriber) Next() string {
	n := m.next.Add(1) - 1
	return mockPhrases[n%uint64(len(mockPhrases))]
}
