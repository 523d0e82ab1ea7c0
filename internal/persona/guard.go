package persona

import "strings"

// Break reasons reported by CheckCharacter.
const (
	BreakAssistantLeak = "assistant_leak"
	BreakRoleSwap      = "role_swap"
)

// FallbackLine is spoken when the model breaks character twice in a row.
const FallbackLine = "Please help me! I need police right now!"

var assistantTells = []string{
	"as an ai",
	"as a language model",
	"i am an ai",
	"i'm an ai",
	"language model",
	"i'm a virtual assistant",
	"i am a virtual assistant",
	"i cannot roleplay",
	"i can't roleplay",
	"i cannot continue this roleplay",
	"my programming",
	"i'm just a computer program",
	"i am a computer program",
	"openai",
	"i don't have personal experiences",
	"i'm not able to simulate",
}

var dispatcherTells = []string{
	"911, what's your emergency",
	"911 what's your emergency",
	"what's your emergency",
	"what is your emergency",
	"what is the address of the emergency",
	"what's the address of the emergency",
	"help is on the way",
	"units are on the way",
	"officers are on the way",
	"an ambulance is on the way",
	"i'm dispatching",
	"i am dispatching",
	"stay on the line with me",
}

// CheckCharacter scans caller dialogue for signs the model dropped out of
// character, either admitting it is an AI or answering as the dispatcher.
func CheckCharacter(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range assistantTells {
		if strings.Contains(lower, phrase) {
			return BreakAssistantLeak, true
		}
	}
	for _, phrase := range dispatcherTells {
		if strings.Contains(lower, phrase) {
			return BreakRoleSwap, true
		}
	}
	return "", false
}
