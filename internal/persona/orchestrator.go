package persona

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Events receives the orchestrator's output as it is produced. OnSentence
// fires once per speakable sentence in emission order. OnSilence fires for
// a deliberate "..." non-answer. OnAbort fires when a character break was
// detected and everything already emitted for this turn must be cancelled.
type Events struct {
	OnSentence func(seq int, text string)
	OnSilence  func()
	OnAbort    func(reason string)
}

type characterBreakError struct {
	reason string
}

func (e *characterBreakError) Error() string {
	return "character break: " + e.reason
}

// Orchestrator turns one committed dispatcher utterance into cleaned caller
// sentences. The streamed response is segmented and checked sentence by
// sentence; a character break aborts the stream, triggers one stricter
// non-streaming regeneration, and falls back to a canned plea if the model
// breaks character again.
type Orchestrator struct {
	gen         Generator
	profile     Profile
	identity    Identity
	temperature float64
	maxTokens   int
}

func NewOrchestrator(gen Generator, profile Profile, identity Identity) *Orchestrator {
	return &Orchestrator{
		gen:         gen,
		profile:     profile,
		identity:    identity,
		temperature: 0.8,
		maxTokens:   300,
	}
}

// Respond generates the caller's reply to userText and returns the full text
// that should be appended to the conversation history.
func (o *Orchestrator) Respond(ctx context.Context, history []Message, userText string, ev Events) (string, error) {
	messages := o.buildMessages(BuildSystemPrompt(o.profile, o.identity), history, userText)

	seg := NewSegmenter()
	enforcer := o.identity.NewEnforcer()
	var spoken []string
	silenced := false
	seq := 0

	emit := func(sentence string) error {
		cleaned := CleanSentence(sentence)
		if cleaned == "" {
			return nil
		}
		if IsSilenceMarker(cleaned) {
			silenced = true
			if ev.OnSilence != nil {
				ev.OnSilence()
			}
			return nil
		}
		if reason, broke := CheckCharacter(cleaned); broke {
			return &characterBreakError{reason: reason}
		}
		cleaned = enforcer.Apply(cleaned)
		if ev.OnSentence != nil {
			ev.OnSentence(seq, cleaned)
		}
		seq++
		spoken = append(spoken, cleaned)
		return nil
	}

	_, err := o.gen.Stream(ctx, Request{
		Messages:    messages,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}, func(delta string) error {
		for _, sentence := range seg.Consume(delta) {
			if err := emit(sentence); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		if rest := seg.Finalize(); rest != "" {
			err = emit(rest)
		}
	}

	var breakErr *characterBreakError
	if err != nil && !errors.As(err, &breakErr) {
		if len(spoken) > 0 {
			// Partial turn already played; keep what was said.
			return strings.Join(spoken, " "), nil
		}
		return "", fmt.Errorf("generate response: %w", err)
	}
	if breakErr == nil {
		if len(spoken) == 0 && silenced {
			// The caller chose not to answer; the marker itself is the
			// turn so the transcript shows the non-response.
			return SilenceMarker, nil
		}
		return strings.Join(spoken, " "), nil
	}

	// Character break: scrap the turn and try once more, non-streaming,
	// with the stricter prompt.
	log.Printf("persona: character break (%s), regenerating", breakErr.reason)
	if ev.OnAbort != nil {
		ev.OnAbort(breakErr.reason)
	}
	return o.regenerate(ctx, history, userText, ev)
}

func (o *Orchestrator) regenerate(ctx context.Context, history []Message, userText string, ev Events) (string, error) {
	messages := o.buildMessages(RegenerationPrompt(o.profile, o.identity), history, userText)

	resp, err := o.gen.Complete(ctx, Request{
		Messages:    messages,
		Temperature: 0.5,
		MaxTokens:   o.maxTokens,
	})
	text := ""
	if err == nil {
		text = CleanSentence(resp.Text)
		if _, broke := CheckCharacter(text); broke || text == "" {
			text = ""
		}
	} else {
		log.Printf("persona: regeneration failed: %v", err)
	}
	if text == "" {
		text = FallbackLine
	}

	enforcer := o.identity.NewEnforcer()
	seg := NewSegmenter()
	seq := 0
	speak := func(sentence string) {
		cleaned := enforcer.Apply(sentence)
		if ev.OnSentence != nil {
			ev.OnSentence(seq, cleaned)
		}
		seq++
	}
	var sentences []string
	sentences = append(sentences, seg.Consume(text+" ")...)
	if rest := seg.Finalize(); rest != "" {
		sentences = append(sentences, rest)
	}
	for _, s := range sentences {
		speak(s)
	}
	return text, nil
}

func (o *Orchestrator) buildMessages(system string, history []Message, userText string) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: userText})
	return messages
}
