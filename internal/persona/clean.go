package persona

import (
	"regexp"
	"strings"
)

var (
	stageBracketPattern = regexp.MustCompile(`\[[^\]]*\]`)
	stageParenPattern   = regexp.MustCompile(`\([^)]*\)`)
	stageStarPattern    = regexp.MustCompile(`\*[^*]*\*`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	rolePrefixPattern   = regexp.MustCompile(`^(?:(?i:caller|dispatcher|operator|me|you|assistant|user)|[A-Z][a-z]{1,15})\s*:\s*`)
	spaceRunPattern     = regexp.MustCompile(`\s+`)
	danglingPunctuation = regexp.MustCompile(`\s+([,.!?;:])`)
)

// SilenceMarker is the canonical form of the caller's deliberate non-answer.
const SilenceMarker = "..."

// CleanSentence strips stage directions and markup the model sneaks into
// dialogue so only speakable words reach the synthesizer. Stage directions
// come as [sobbing], (whispers) or *cries*; role labels as "Sarah:" prefixes.
func CleanSentence(raw string) string {
	if IsSilenceMarker(raw) {
		return SilenceMarker
	}

	out := stageBracketPattern.ReplaceAllString(raw, " ")
	out = stageParenPattern.ReplaceAllString(out, " ")
	out = stageStarPattern.ReplaceAllString(out, " ")
	out = htmlTagPattern.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	out = rolePrefixPattern.ReplaceAllString(out, "")

	out = spaceRunPattern.ReplaceAllString(out, " ")
	out = danglingPunctuation.ReplaceAllString(out, "$1")
	out = strings.TrimSpace(out)

	// Nothing speakable left once the directions are gone.
	if strings.Trim(out, ".,!?;:-'\" ") == "" {
		return ""
	}
	return out
}

// IsSilenceMarker reports whether the text is the deliberate non-answer the
// character uses when too scared or hurt to speak.
func IsSilenceMarker(text string) bool {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.ReplaceAll(trimmed, "…", "...")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if r != '.' && r != ' ' {
			return false
		}
	}
	return strings.Count(trimmed, ".") >= 3
}
