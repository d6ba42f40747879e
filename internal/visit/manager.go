package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Visit is one physical presence in front of the sculpture, from zone enter
// to zone exit.
type Visit struct {
	ID             string    `json:"visit_id"`
	Status         Status    `json:"status"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

// Manager tracks the current visit and a short history of past ones. A
// janitor ends visits that go quiet, covering the case where the proximity
// sensor misses the exit.
type Manager struct {
	mu                sync.RWMutex
	current           *Visit
	history           []Visit
	historyCap        int
	inactivityTimeout time.Duration
	onExpire          func(Visit)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		historyCap:        50,
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback fired when the janitor ends a visit.
func (m *Manager) SetExpireHook(hook func(Visit)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Begin opens a visit. If one is already active it is returned untouched,
// so a flaky sensor re-reporting an arrival does not split the visit.
func (m *Manager) Begin() Visit {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.LastActivityAt = now
		return *m.current
	}
	m.current = &Visit{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	return *m.current
}

// Touch records activity on the current visit and bumps its turn counter.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.Turns++
	m.current.LastActivityAt = time.Now().UTC()
}

// End closes the current visit, if any.
func (m *Manager) End() (Visit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endLocked(time.Now().UTC())
}

// Current returns the active visit.
func (m *Manager) Current() (Visit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Visit{}, false
	}
	return *m.current, true
}

// Recent returns past visits, newest first.
func (m *Manager) Recent() []Visit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Visit, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// StartJanitor ends visits with no activity past the inactivity timeout.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()

	m.mu.Lock()
	var expired *Visit
	if m.current != nil && now.Sub(m.current.LastActivityAt) >= m.inactivityTimeout {
		if v, ok := m.endLocked(now); ok {
			expired = &v
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if expired != nil && hook != nil {
		hook(*expired)
	}
}

func (m *Manager) endLocked(now time.Time) (Visit, bool) {
	if m.current == nil {
		return Visit{}, false
	}
	v := *m.current
	v.Status = StatusEnded
	v.EndedAt = now
	v.LastActivityAt = now
	m.current = nil
	m.history = append(m.history, v)
	if len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
	return v, true
}
