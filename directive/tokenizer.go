package directive

import "strings"

// Token is one recognized tag occurrence in a text
type Token struct {
	Name    string // tag name without the namespace prefix
	Family  Family
	Payload string // raw payload, trimmed; empty for bare tags
	Start   int    // byte offset of '['
	End     int    // byte offset just past the token
	Partial bool   // the token runs to the end of the input without closing
}

// Tokenize returns the tags found in s, in order. At most one token is
// partial and, if present, it is the last one and ends at len(s).
func Tokenize(s string) []Token {
	var tokens []Token
	i := 0
	for i < len(s) {
		j := strings.IndexByte(s[i:], '[')
		if j < 0 {
			break
		}
		start := i + j
		tok, ok := scanToken(s, start)
		if !ok {
			i = start + 1
			continue
		}
		tokens = append(tokens, tok)
		if tok.Partial {
			break
		}
		i = tok.End
	}
	return tokens
}

// scanToken tries to read a tag starting at the '[' at position start
func scanToken(s string, start int) (Token, bool) {
	pos := start + 1
	nameStart := pos
	for pos < len(s) && isNameByte(s[pos]) {
		pos++
	}
	rawName := s[nameStart:pos]

	if pos == len(s) {
		// still streaming the name
		if couldBecome(rawName) {
			return Token{Start: start, End: len(s), Partial: true, Name: strings.TrimPrefix(rawName, Namespace)}, true
		}
		return Token{}, false
	}

	name := strings.TrimPrefix(rawName, Namespace)
	family, known := lookup(name)
	if !known || name == "" {
		return Token{}, false
	}

	switch s[pos] {
	case ']':
		if family != FamilyBare && family != FamilyMarker {
			return Token{}, false
		}
		return Token{Name: name, Family: family, Start: start, End: pos + 1}, true
	case ':':
		if family == FamilyBare {
			return Token{}, false
		}
		return scanPayload(s, start, pos+1, name, family)
	default:
		return Token{}, false
	}
}

// scanPayload reads the payload after the colon and the closing bracket.
// Scalar payloads stay on one line: a newline or another '[' before the
// closing bracket means the text is not a tag.
func scanPayload(s string, start, pos int, name string, family Family) (Token, bool) {
	tok := Token{Name: name, Family: family, Start: start}

	body := pos
	for body < len(s) && isSpace(s[body]) {
		body++
	}
	if body == len(s) {
		tok.End, tok.Partial = len(s), true
		return tok, true
	}

	if family == FamilyScalar {
		stop := strings.IndexAny(s[body:], "]\n[")
		switch {
		case stop < 0:
			tok.End, tok.Partial = len(s), true
			return tok, true
		case s[body+stop] != ']':
			return Token{}, false
		}
		tok.Payload = strings.TrimSpace(s[body : body+stop])
		tok.End = body + stop + 1
		return tok, true
	}

	if family == FamilyStructured && (s[body] == '{' || s[body] == '[') {
		spanEnd, closed := balancedSpan(s, body)
		if !closed {
			tok.End, tok.Partial = len(s), true
			return tok, true
		}
		after := spanEnd
		for after < len(s) && isSpace(s[after]) {
			after++
		}
		if after == len(s) {
			tok.End, tok.Partial = len(s), true
			return tok, true
		}
		if s[after] == ']' {
			tok.Payload = s[body:spanEnd]
			tok.End = after + 1
			return tok, true
		}
		// junk after the span: fall back to the first closing bracket
	}

	closeIdx := strings.IndexByte(s[body:], ']')
	if closeIdx < 0 {
		tok.End, tok.Partial = len(s), true
		return tok, true
	}
	tok.Payload = strings.TrimSpace(s[body : body+closeIdx])
	tok.End = body + closeIdx + 1
	return tok, true
}

// balancedSpan finds the end of the JSON object or array starting at open.
// String literals and escapes are honoured so brackets inside strings do not
// count.
func balancedSpan(s string, open int) (end int, closed bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return len(s), false
}

func isNameByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
