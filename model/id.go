package model

import "strings"

// NormalizeID derives a stable id from a title: lower-case, every run of
// characters outside [a-z0-9] collapsed to "-", leading and trailing "-"
// trimmed. Distinct titles may collide ("Elden Ring!" and "Elden Ring?");
// callers treat the collision as the same subject.
func NormalizeID(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
