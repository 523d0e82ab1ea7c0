package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

var (
	ErrNotFound          = errors.New("call not found")
	ErrInvalidTransition = errors.New("invalid call state transition")
)

// Call is one training call's lifecycle record. The live pipeline state
// (audio, turns in flight) belongs to the Engine; this is what survives for
// listing and transcripts.
type Call struct {
	ID                string    `json:"call_id"`
	ScenarioID        string    `json:"scenario_id"`
	State             State     `json:"state"`
	CallerName        string    `json:"caller_name"`
	CallbackNumber    string    `json:"callback_number"`
	Address           string    `json:"address"`
	Cooperation       int       `json:"cooperation"`
	InterruptionCount int       `json:"interruption_count"`
	TurnCount         int       `json:"turn_count"`
	StartedAt         time.Time `json:"started_at"`
	AnsweredAt        time.Time `json:"answered_at,omitempty"`
	EndedAt           time.Time `json:"ended_at,omitempty"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	calls             map[string]*Call
	inactivityTimeout time.Duration
	onExpire          func(*Call)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	return &Manager{
		calls:             make(map[string]*Call),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Call)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a new call in the ringing state.
func (m *Manager) Create(scenarioID, callerName, callbackNumber, address string, cooperation int) *Call {
	now := time.Now().UTC()
	c := &Call{
		ID:             uuid.NewString(),
		ScenarioID:     scenarioID,
		State:          StateRinging,
		CallerName:     callerName,
		CallbackNumber: callbackNumber,
		Address:        address,
		Cooperation:    cooperation,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[c.ID] = c
	return clone(c)
}

func (m *Manager) Get(callID string) (*Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (m *Manager) Touch(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) Answer(callID string) (*Call, error) {
	return m.transition(callID, StateActive, StateRinging)
}

func (m *Manager) Pause(callID string) (*Call, error) {
	return m.transition(callID, StatePaused, StateActive)
}

func (m *Manager) Resume(callID string) (*Call, error) {
	return m.transition(callID, StateActive, StatePaused)
}

func (m *Manager) Hangup(callID string) (*Call, error) {
	return m.transition(callID, StateEnded, StateRinging, StateActive, StatePaused)
}

// Restart puts an existing call back in the ringing state with fresh
// counters and a new identity, keeping the same call ID and scenario.
func (m *Manager) Restart(callID, callbackNumber string) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	c.State = StateRinging
	c.CallbackNumber = callbackNumber
	c.InterruptionCount = 0
	c.TurnCount = 0
	c.StartedAt = now
	c.AnsweredAt = time.Time{}
	c.EndedAt = time.Time{}
	c.LastActivityAt = now
	return clone(c), nil
}

func (m *Manager) RecordInterruption(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.InterruptionCount++
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) RecordTurn(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.TurnCount++
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.calls {
		if c.State == StateActive || c.State == StatePaused || c.State == StateRinging {
			count++
		}
	}
	return count
}

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

func (m *Manager) transition(callID string, to State, from ...State) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if c.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, to)
	}
	now := time.Now().UTC()
	c.State = to
	c.LastActivityAt = now
	switch to {
	case StateActive:
		if c.AnsweredAt.IsZero() {
			c.AnsweredAt = now
		}
	case StateEnded:
		c.EndedAt = now
	}
	return clone(c), nil
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Call

	m.mu.Lock()
	for _, c := range m.calls {
		if c.State == StateEnded {
			continue
		}
		if now.Sub(c.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		c.State = StateEnded
		c.EndedAt = now
		c.LastActivityAt = now
		expired = append(expired, clone(c))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func clone(c *Call) *Call {
	cp := *c
	return &cp
}
