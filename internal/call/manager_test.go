package call

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Create("sc1", "Sarah", "555-201-4321", "42 Oak Street", 40)
	if c.ID == "" {
		t.Fatalf("call ID should not be empty")
	}
	if c.State != StateRinging {
		t.Fatalf("state = %q, want ringing", c.State)
	}

	c, err := m.Answer(c.ID)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if c.State != StateActive || c.AnsweredAt.IsZero() {
		t.Fatalf("after answer: %+v", c)
	}

	if c, err = m.Pause(c.ID); err != nil || c.State != StatePaused {
		t.Fatalf("Pause() = %+v, %v", c, err)
	}
	if c, err = m.Resume(c.ID); err != nil || c.State != StateActive {
		t.Fatalf("Resume() = %+v, %v", c, err)
	}
	if c, err = m.Hangup(c.ID); err != nil || c.State != StateEnded || c.EndedAt.IsZero() {
		t.Fatalf("Hangup() = %+v, %v", c, err)
	}
}

func TestManagerRejectsInvalidTransitions(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Create("sc1", "Sarah", "555-201-4321", "42 Oak Street", 40)

	if _, err := m.Pause(c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Pause from ringing: error = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Resume(c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Resume from ringing: error = %v, want ErrInvalidTransition", err)
	}

	if _, err := m.Hangup(c.ID); err != nil {
		t.Fatalf("Hangup() error = %v", err)
	}
	if _, err := m.Answer(c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Answer after hangup: error = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Hangup(c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double Hangup: error = %v, want ErrInvalidTransition", err)
	}
}

func TestManagerRestartResetsCall(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Create("sc1", "Sarah", "555-201-4321", "42 Oak Street", 40)
	if _, err := m.Answer(c.ID); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if err := m.RecordInterruption(c.ID); err != nil {
		t.Fatalf("RecordInterruption() error = %v", err)
	}
	if err := m.RecordTurn(c.ID); err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}
	if _, err := m.Hangup(c.ID); err != nil {
		t.Fatalf("Hangup() error = %v", err)
	}

	c, err := m.Restart(c.ID, "667-300-2000")
	if err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if c.State != StateRinging {
		t.Fatalf("state after restart = %q, want ringing", c.State)
	}
	if c.CallbackNumber != "667-300-2000" {
		t.Fatalf("callback after restart = %q", c.CallbackNumber)
	}
	if c.InterruptionCount != 0 || c.TurnCount != 0 {
		t.Fatalf("counters not reset: %+v", c)
	}
	if !c.AnsweredAt.IsZero() || !c.EndedAt.IsZero() {
		t.Fatalf("timestamps not reset: %+v", c)
	}
}

func TestManagerUnknownCall(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Answer("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Answer() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresStaleCalls(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	c := m.Create("sc1", "Sarah", "555-201-4321", "42 Oak Street", 40)

	expired := make(chan string, 1)
	m.SetExpireHook(func(c *Call) { expired <- c.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 5*time.Millisecond)

	select {
	case id := <-expired:
		if id != c.ID {
			t.Fatalf("expired call = %q, want %q", id, c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor never expired the call")
	}

	got, err := m.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateEnded {
		t.Fatalf("state = %q, want ended", got.State)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}
