package persona

import (
	"context"
	"testing"
)

type eventLog struct {
	sentences []string
	silences  int
	aborts    []string
}

func (l *eventLog) events() Events {
	return Events{
		OnSentence: func(_ int, text string) { l.sentences = append(l.sentences, text) },
		OnSilence:  func() { l.silences++ },
		OnAbort:    func(reason string) { l.aborts = append(l.aborts, reason) },
	}
}

func testProfile() (Profile, Identity) {
	p := Profile{
		CallerName:     "Sarah",
		Situation:      "home intruder",
		Address:        "42 Oak Street",
		EmotionalState: "terrified",
		Cooperation:    40,
	}
	return p, Identity{CallbackNumber: "555-201-4321", Address: p.Address}
}

func TestOrchestratorStreamsCleanedSentences(t *testing.T) {
	gen := NewMockGenerator("[sobbing] Someone's in my house! Please hurry. ")
	p, id := testProfile()
	o := NewOrchestrator(gen, p, id)
	var l eventLog

	full, err := o.Respond(context.Background(), nil, "911, what's going on?", l.events())
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(l.sentences) != 2 {
		t.Fatalf("sentences = %q, want 2", l.sentences)
	}
	if l.sentences[0] != "Someone's in my house!" {
		t.Fatalf("sentence[0] = %q", l.sentences[0])
	}
	if l.sentences[1] != "Please hurry." {
		t.Fatalf("sentence[1] = %q", l.sentences[1])
	}
	if full != "Someone's in my house! Please hurry." {
		t.Fatalf("full = %q", full)
	}
	if len(l.aborts) != 0 || l.silences != 0 {
		t.Fatalf("unexpected aborts %v or silences %d", l.aborts, l.silences)
	}
}

func TestOrchestratorEmitsSilenceMarker(t *testing.T) {
	gen := NewMockGenerator("... ")
	p, id := testProfile()
	o := NewOrchestrator(gen, p, id)
	var l eventLog

	full, err := o.Respond(context.Background(), nil, "Can you hear me?", l.events())
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if l.silences != 1 {
		t.Fatalf("silences = %d, want 1", l.silences)
	}
	if len(l.sentences) != 0 {
		t.Fatalf("sentences = %q, want none", l.sentences)
	}
	// The marker is the turn text, so the transcript keeps the non-answer.
	if full != SilenceMarker {
		t.Fatalf("full = %q, want %q", full, SilenceMarker)
	}
}

func TestOrchestratorRegeneratesAfterCharacterBreak(t *testing.T) {
	gen := NewMockGenerator("As an AI, I can't continue this. ")
	gen.Completion = "No, I'm still here! He's upstairs."
	p, id := testProfile()
	o := NewOrchestrator(gen, p, id)
	var l eventLog

	full, err := o.Respond(context.Background(), nil, "Stay with me.", l.events())
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(l.aborts) != 1 || l.aborts[0] != BreakAssistantLeak {
		t.Fatalf("aborts = %v, want one assistant_leak", l.aborts)
	}
	if full != "No, I'm still here! He's upstairs." {
		t.Fatalf("full = %q", full)
	}
	if len(l.sentences) != 2 {
		t.Fatalf("sentences = %q, want 2 from regeneration", l.sentences)
	}
}

func TestOrchestratorFallsBackWhenRegenerationBreaksToo(t *testing.T) {
	gen := NewMockGenerator("911, what's your emergency? ")
	gen.Completion = "As an AI I really cannot do this."
	p, id := testProfile()
	o := NewOrchestrator(gen, p, id)
	var l eventLog

	full, err := o.Respond(context.Background(), nil, "Hello?", l.events())
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if full != FallbackLine {
		t.Fatalf("full = %q, want fallback line", full)
	}
	if len(l.sentences) != 2 {
		t.Fatalf("sentences = %q, want the two fallback sentences", l.sentences)
	}
	if l.sentences[0] != "Please help me!" {
		t.Fatalf("sentence[0] = %q", l.sentences[0])
	}
}

func TestOrchestratorKeepsIdentityConsistent(t *testing.T) {
	gen := NewMockGenerator("I'm at 9 Maple Avenue. Call me back at 301-777-8888. ")
	p, id := testProfile()
	o := NewOrchestrator(gen, p, id)
	var l eventLog

	if _, err := o.Respond(context.Background(), nil, "Where are you?", l.events()); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(l.sentences) != 2 {
		t.Fatalf("sentences = %q, want 2", l.sentences)
	}
	if l.sentences[0] != "I'm at 42 Oak Street." {
		t.Fatalf("sentence[0] = %q, want consistent address", l.sentences[0])
	}
	if l.sentences[1] != "Call me back at 555-201-4321." {
		t.Fatalf("sentence[1] = %q, want callback number", l.sentences[1])
	}
}
