package persona

import "strings"

// Segmenter splits a streamed response into sentences as deltas arrive.
// A sentence ends at a run of terminal punctuation followed by whitespace;
// trailing text without a terminator is flushed by Finalize.
type Segmenter struct {
	pending string
}

func NewSegmenter() *Segmenter { return &Segmenter{} }

func (s *Segmenter) Consume(delta string) []string {
	if delta == "" {
		return nil
	}
	s.pending += delta

	var out []string
	for {
		sentence, rest, ok := splitFirstSentence(s.pending)
		if !ok {
			break
		}
		s.pending = rest
		if strings.TrimSpace(sentence) != "" {
			out = append(out, strings.TrimSpace(sentence))
		}
	}
	return out
}

// Finalize returns whatever text is still buffered, terminated or not.
func (s *Segmenter) Finalize() string {
	out := strings.TrimSpace(s.pending)
	s.pending = ""
	return out
}

func splitFirstSentence(text string) (sentence, rest string, ok bool) {
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		// Absorb the whole punctuation run ("?!", "...").
		end := i
		for end+1 < len(runes) && isSentenceTerminator(runes[end+1]) {
			end++
		}
		// Only split on a confirmed boundary. A terminator at the very end
		// of the buffer may still grow ("3." then "5"), so wait for more.
		if end+1 >= len(runes) {
			return "", "", false
		}
		if !isBoundaryRune(runes[end+1]) {
			i = end
			continue
		}
		return string(runes[:end+1]), string(runes[end+1:]), true
	}
	return "", "", false
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isBoundaryRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
