package transcribe

import "context"

type EventType string

const (
	EventPartial       EventType = "partial"
	EventCommitted     EventType = "committed"
	EventSpeechStarted EventType = "speech_started"
	EventError         EventType = "error"
	EventClosed        EventType = "closed"
)

// Event is one item from a transcription stream. Closed events carry the
// websocket close code in Code and report whether a reconnect makes sense.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Code       string
	Detail     string
	Retryable  bool
	Timestamp  int64
}

// Stream is a live connection to a speech to text provider. SendAudio takes
// raw PCM16LE mono bytes. Finish asks the provider to flush pending results
// before the connection closes.
type Stream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Finish(ctx context.Context) error
	Close() error
}

type Provider interface {
	Connect(ctx context.Context, callID string, sampleRate int) (Stream, <-chan Event, error)
}
