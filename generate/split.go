package generate

import (
	"log/slog"
	"strings"

	"github.com/dlclark/regexp2"
)

// sentenceBoundary matches the whitespace after a danda, question mark,
// exclamation mark or newline. The terminal itself is only looked at.
var sentenceBoundary = regexp2.MustCompile(`(?<=[।?!\n])\s+`, regexp2.None)

// SplitSentences splits Nepali text into sentences. Each fragment keeps its
// terminal punctuation and is trimmed; empty fragments are dropped. Text
// without boundaries comes back as a single trimmed fragment, blank text as nil.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var out []string
	start := 0

	m, err := sentenceBoundary.FindRunesMatch(runes)
	for err == nil && m != nil {
		out = appendFragment(out, runes[start:m.Index])
		start = m.Index + m.Length
		m, err = sentenceBoundary.FindNextMatch(m)
	}
	if err != nil {
		slog.Warn("sentence split failed, using whole text", "error", err)
		return []string{text}
	}

	return appendFragment(out, runes[start:])
}

func appendFragment(out []string, r []rune) []string {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return out
	}
	return append(out, s)
}
