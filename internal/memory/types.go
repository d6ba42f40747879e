package memory

import (
	"time"
)

// Role identifies the author of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single entry in the conversation history. Insertion order is
// significant: it defines the recency window.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Stage is the coarse relationship bucket derived from the interaction count.
type Stage string

const (
	StageFirstMeeting Stage = "first_meeting"
	StageAcquainting  Stage = "acquainting"
	StageEstablished  Stage = "established"
)

// Memory is everything the installation remembers about its visitor.
type Memory struct {
	VisitorID       string    `json:"visitor_id"`
	Turns           []Turn    `json:"turns"`
	Topics          []string  `json:"topics"`
	Interactions    int       `json:"interactions"`
	FirstContact    time.Time `json:"first_contact"`
	LastInteraction time.Time `json:"last_interaction"`
	PersonalityNote string    `json:"personality_note"`
}

// NewMemory returns a fresh empty memory for the given visitor.
func NewMemory(visitorID string) Memory {
	return Memory{VisitorID: visitorID}
}

// Stage buckets the relationship by cumulative interaction count.
func (m Memory) Stage() Stage {
	switch {
	case m.Interactions <= 1:
		return StageFirstMeeting
	case m.Interactions < 5:
		return StageAcquainting
	default:
		return StageEstablished
	}
}

// HasTopic reports whether the tag was already discovered.
func (m Memory) HasTopic(tag string) bool {
	for _, t := range m.Topics {
		if t == tag {
			return true
		}
	}
	return false
}
