package persona

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Text string
}

// DeltaHandler receives streaming text fragments. Returning an error aborts
// the stream.
type DeltaHandler func(delta string) error

// Generator produces caller dialogue. Stream is the normal path; Complete is
// used for the single non-streaming regeneration after a character break.
type Generator interface {
	Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
	Complete(ctx context.Context, req Request) (Response, error)
}
