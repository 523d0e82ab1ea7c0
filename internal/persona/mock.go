package persona

import (
	"context"
	"strings"
	"sync"
)

// MockGenerator is a scripted generator for tests and credential-free runs.
// Each Stream call plays the next script entry as word-sized deltas.
type MockGenerator struct {
	mu         sync.Mutex
	Script     []string
	Completion string
	next       int
}

func NewMockGenerator(script ...string) *MockGenerator {
	return &MockGenerator{Script: script}
}

func (g *MockGenerator) Stream(_ context.Context, _ Request, onDelta DeltaHandler) (Response, error) {
	g.mu.Lock()
	text := "Please, you have to help me!"
	if g.next < len(g.Script) {
		text = g.Script[g.next]
		g.next++
	}
	g.mu.Unlock()

	var out strings.Builder
	for _, word := range strings.SplitAfter(text, " ") {
		out.WriteString(word)
		if onDelta != nil {
			if err := onDelta(word); err != nil {
				return Response{Text: out.String()}, err
			}
		}
	}
	return Response{Text: out.String()}, nil
}

func (g *MockGenerator) Complete(_ context.Context, _ Request) (Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Completion != "" {
		return Response{Text: g.Completion}, nil
	}
	return Response{Text: "I'm still here. Please hurry."}, nil
}
