package transcribe

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a local fallback provider used when Deepgram is not
// configured. It commits a canned transcript every few audio chunks so the
// rest of the pipeline can be exercised without credentials.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Connect(_ context.Context, _ string, _ int) (Stream, <-chan Event, error) {
	events := make(chan Event, 64)
	return &mockStream{events: events}, events, nil
}

type mockStream struct {
	mu     sync.Mutex
	events chan Event
	chunks int
	closed bool
}

func (s *mockStream) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(pcm) == 0 {
		return nil
	}
	s.chunks++
	s.events <- Event{Type: EventPartial, Text: "...", Confidence: 0.5, Timestamp: time.Now().UnixMilli()}
	if s.chunks%8 == 0 {
		s.events <- Event{Type: EventCommitted, Text: "nine one one what is your emergency", Confidence: 0.7, Timestamp: time.Now().UnixMilli()}
	}
	return nil
}

func (s *mockStream) Finish(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events <- Event{Type: EventClosed, Code: "1000", Retryable: false, Timestamp: time.Now().UnixMilli()}
	close(s.events)
	return nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
