package memory

import (
	"fmt"
	"strings"
	"time"
)

// ContextWindow returns the most recent maxTurns entries preceded by a
// synthesized system preamble describing the relationship so far.
func (m Memory) ContextWindow(maxTurns int, now time.Time) []Turn {
	recent := m.Turns
	if maxTurns > 0 && len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}
	out := make([]Turn, 0, len(recent)+1)
	out = append(out, Turn{Role: RoleSystem, Content: m.preamble(now)})
	out = append(out, recent...)
	return out
}

func (m Memory) preamble(now time.Time) string {
	var b strings.Builder
	switch m.Stage() {
	case StageFirstMeeting:
		b.WriteString("You are meeting this visitor for the first time.")
	case StageAcquainting:
		b.WriteString("You are getting acquainted with this visitor.")
	default:
		b.WriteString("This visitor is a familiar presence you know well.")
	}

	if !m.FirstContact.IsZero() {
		days := int(now.Sub(m.FirstContact).Hours() / 24)
		if days > 0 {
			fmt.Fprintf(&b, " You first met %d day(s) ago.", days)
		}
	}
	fmt.Fprintf(&b, " You have spoken %d time(s).", m.Interactions)

	if len(m.Topics) > 0 {
		fmt.Fprintf(&b, " Topics discussed so far: %s.", strings.Join(m.Topics, ", "))
	}
	if note := strings.TrimSpace(m.PersonalityNote); note != "" {
		fmt.Fprintf(&b, " What you noticed about them: %s", note)
	}
	return b.String()
}
