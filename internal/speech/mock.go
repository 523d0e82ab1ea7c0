package speech

import "context"

// MockSynthesizer echoes the sentence text as audio bytes so the pipeline
// and websocket flow can run without credentials.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	return []byte(text), "mock_text_bytes", nil
}
