package directive

import (
	"regexp"
	"strings"
)

var (
	progressLine   = regexp.MustCompile(`(?m)^[ \t]*Game Progress:[ \t]*\d+%[ \t]*$`)
	innerSpaces    = regexp.MustCompile(`(\S)[ \t]{2,}`)
	trailingSpaces = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Clean removes every recognized tag from raw, complete or still streaming,
// and returns the text meant for display. Text between HINT_START and
// HINT_END stays; only the markers go. Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	out := raw
	for {
		next := strings.TrimSpace(strip(out))
		if next == out {
			return out
		}
		out = next
	}
}

// strip is one lexical pass: every token span is cut out
func strip(s string) string {
	tokens := Tokenize(s)
	if len(tokens) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, tok := range tokens {
		b.WriteString(s[last:tok.Start])
		last = tok.End
	}
	b.WriteString(s[last:])
	return b.String()
}

// FinalText is the display text stored once a stream is complete: Clean plus
// the removal of "Game Progress: NN%" lines and the whitespace left behind
// by removed tags.
func FinalText(raw string) string {
	text := Clean(raw)
	text = progressLine.ReplaceAllString(text, "")
	text = innerSpaces.ReplaceAllString(text, "$1 ")
	text = trailingSpaces.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
