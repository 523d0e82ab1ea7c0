package persona

import (
	"fmt"
	"strings"
)

// Profile is the caller the model plays for one training call.
type Profile struct {
	CallerName     string
	Situation      string
	Address        string
	EmotionalState string
	// Cooperation ranges 0-100: low means panicked and hard to question,
	// high means calm and forthcoming.
	Cooperation int
}

// BuildSystemPrompt writes the character instructions for a call. The rules
// about staying in character and never playing the dispatcher are what the
// character guard later enforces.
func BuildSystemPrompt(p Profile, id Identity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a caller on the phone with a 911 dispatcher in training.\n\n", nameOrDefault(p.CallerName))
	fmt.Fprintf(&b, "Your situation: %s\n", p.Situation)
	fmt.Fprintf(&b, "You are at: %s\n", id.Address)
	fmt.Fprintf(&b, "Your callback number is %s. Give it only when asked.\n", id.CallbackNumber)
	if p.EmotionalState != "" {
		fmt.Fprintf(&b, "Your emotional state: %s\n", p.EmotionalState)
	}
	b.WriteString("\n")
	b.WriteString(cooperationInstruction(p.Cooperation))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- You are the CALLER. Never speak as the dispatcher and never ask dispatcher questions.\n")
	b.WriteString("- Stay in character no matter what. Never mention being an AI or a simulation.\n")
	b.WriteString("- Speak in short, natural sentences. No stage directions, no narration, plain spoken words only.\n")
	b.WriteString("- If you are too scared or hurt to answer, respond with exactly \"...\" and nothing else.\n")
	b.WriteString("- Keep your address and phone number consistent with the details above.\n")
	return b.String()
}

func cooperationInstruction(level int) string {
	switch {
	case level < 30:
		return "You are panicked and barely coherent. You interrupt yourself, repeat urgent pleas, and struggle to answer direct questions. The dispatcher has to work hard to get facts out of you."
	case level < 70:
		return "You are frightened but trying to hold it together. You answer questions, though stress makes you wander off topic and you sometimes need questions repeated."
	default:
		return "You are shaken but composed. You answer the dispatcher's questions directly and volunteer useful details."
	}
}

// ContinuationPrompt nudges the caller to speak again after the dispatcher
// stays silent too long. The push matches the caller's temperament.
func ContinuationPrompt(cooperation int) string {
	switch {
	case cooperation < 30:
		return "The dispatcher has gone quiet. You are terrified by the silence. Beg them to still be there and plead for help."
	case cooperation < 70:
		return "The dispatcher has gone quiet. Nervously check if they are still on the line and repeat what you need."
	default:
		return "The dispatcher has gone quiet. Calmly ask if they are still there and whether they need anything else from you."
	}
}

// RegenerationPrompt is the stricter retry after a character break.
func RegenerationPrompt(p Profile, id Identity) string {
	return BuildSystemPrompt(p, id) +
		"\nIMPORTANT: Your previous reply broke character. Respond again as the caller only, " +
		"in first person, with no AI disclaimers and no dispatcher lines. One or two short sentences."
}

func nameOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return "a caller"
	}
	return name
}
