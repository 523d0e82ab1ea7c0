package transcribe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mkaran/dispatchsim/internal/reliability"
)

type ManagerConfig struct {
	CallID      string
	SampleRate  int
	MaxAttempts int
	BaseDelay   time.Duration

	// OnReconnect is an optional hook called with "success" or "failure"
	// per reconnect attempt, used to feed metrics.
	OnReconnect func(outcome string)
}

// ConnState is the manager's view of its provider connection.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnClosing      ConnState = "closing"
)

// Manager owns one provider stream for the lifetime of a call and hides
// reconnects from its consumer. Events from successive connections are
// merged onto one output channel; the channel closes only when the stream
// ends for good (clean close, explicit stop, or reconnect budget spent).
type Manager struct {
	provider Provider
	cfg      ManagerConfig
	out      chan Event

	mu      sync.Mutex
	stream  Stream
	state   ConnState
	paused  bool
	stopped bool
	started bool
}

func NewManager(provider Provider, cfg ManagerConfig) *Manager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Manager{
		provider: provider,
		cfg:      cfg,
		out:      make(chan Event, 256),
		state:    ConnDisconnected,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	stream, events, err := m.provider.Connect(ctx, m.cfg.CallID, m.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	m.mu.Lock()
	m.stream = stream
	m.state = ConnConnected
	m.started = true
	m.mu.Unlock()
	go m.forward(ctx, events)
	return nil
}

func (m *Manager) Events() <-chan Event { return m.out }

// State reports the connection's lifecycle phase.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SendAudio forwards dispatcher audio to the active connection. Audio is
// silently dropped while paused or while a reconnect is in progress, so
// frames never hit a dead socket.
func (m *Manager) SendAudio(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	stream := m.stream
	skip := m.paused || m.stopped || m.state != ConnConnected || stream == nil
	m.mu.Unlock()
	if skip {
		return nil
	}
	return stream.SendAudio(ctx, pcm)
}

func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

// Stop finishes the stream gracefully: the provider flushes pending results
// and closes with code 1000, which the forward loop treats as final.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.state = ConnClosing
	stream := m.stream
	started := m.started
	m.mu.Unlock()
	if stream == nil {
		// Either never started, or mid-reconnect. In the latter case the
		// forward loop still owns the channel and will close it.
		if !started {
			close(m.out)
		}
		return
	}
	if err := stream.Finish(ctx); err != nil {
		_ = stream.Close()
	}
}

func (m *Manager) forward(ctx context.Context, events <-chan Event) {
	for {
		ev, ok := <-events
		if !ok {
			// Stream closed without a Closed event. Treat as final.
			m.disconnect()
			close(m.out)
			return
		}
		if ev.Type != EventClosed {
			m.out <- ev
			continue
		}

		m.mu.Lock()
		stopped := m.stopped
		m.stream = nil
		if stopped || !ev.Retryable {
			m.state = ConnDisconnected
		} else {
			m.state = ConnConnecting
		}
		m.mu.Unlock()
		if stopped || !ev.Retryable {
			m.out <- ev
			close(m.out)
			return
		}

		next, ok := m.reconnect(ctx)
		if !ok {
			m.mu.Lock()
			m.stream = nil
			m.state = ConnDisconnected
			stoppedMidway := m.stopped
			m.mu.Unlock()
			if !stoppedMidway {
				m.out <- Event{
					Type:      EventError,
					Code:      "reconnect_failed",
					Detail:    fmt.Sprintf("gave up after %d attempts", m.cfg.MaxAttempts),
					Timestamp: time.Now().UnixMilli(),
				}
			}
			m.out <- ev
			close(m.out)
			return
		}
		events = next
	}
}

func (m *Manager) reconnect(ctx context.Context) (<-chan Event, bool) {
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		delay := reliability.ReconnectDelay(attempt, m.cfg.BaseDelay)
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return nil, false
		}
		m.mu.Unlock()

		stream, events, err := m.provider.Connect(ctx, m.cfg.CallID, m.cfg.SampleRate)
		if err != nil {
			log.Printf("transcribe: reconnect attempt %d/%d failed: %v", attempt, m.cfg.MaxAttempts, err)
			if m.cfg.OnReconnect != nil {
				m.cfg.OnReconnect("failure")
			}
			continue
		}
		if m.cfg.OnReconnect != nil {
			m.cfg.OnReconnect("success")
		}
		m.mu.Lock()
		m.stream = stream
		m.state = ConnConnected
		m.mu.Unlock()
		return events, true
	}
	return nil, false
}

func (m *Manager) disconnect() {
	m.mu.Lock()
	m.stream = nil
	m.state = ConnDisconnected
	m.mu.Unlock()
}
