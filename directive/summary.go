package directive

import (
	"strings"

	"game-companion/model"
)

// Summary folds a directive list into the fields the reducer reads
type Summary struct {
	GameName       string
	Genre          string
	HighConfidence bool
	Progress       *int
	Unreleased     bool
	Triumph        *model.Triumph
	Inventory      []string // nil when absent
	Suggestions    []string
	InsightUpdate  *InsightUpdate
	Modification   *model.PendingInsightModification
	DeleteInsight  string
	Objective      *string
	ObjectiveDone  bool
}

// Identified reports whether the response named a subject
func (s Summary) Identified() bool {
	return s.GameName != ""
}

// Empty reports whether no directive was present
func (s Summary) Empty() bool {
	return s.GameName == "" && s.Genre == "" && !s.HighConfidence && s.Progress == nil &&
		!s.Unreleased && s.Triumph == nil && s.Inventory == nil && s.Suggestions == nil &&
		s.InsightUpdate == nil && s.Modification == nil && s.DeleteInsight == "" &&
		s.Objective == nil && !s.ObjectiveDone
}

// Summarize folds dirs into a Summary
func Summarize(dirs []Directive) Summary {
	var s Summary
	for _, d := range dirs {
		switch v := d.(type) {
		case GameID:
			s.GameName = v.Name
		case Genre:
			s.Genre = v.Name
		case Confidence:
			s.HighConfidence = v.High
		case Progress:
			p := v.Percent
			s.Progress = &p
		case Unreleased:
			s.Unreleased = true
		case Triumph:
			t := v.Triumph
			s.Triumph = &t
		case Inventory:
			s.Inventory = append([]string{}, v.Items...)
		case Suggestions:
			s.Suggestions = append([]string{}, v.Items...)
		case InsightUpdate:
			u := v
			s.InsightUpdate = &u
		case InsightModifyPending:
			m := v.PendingInsightModification
			s.Modification = &m
		case InsightDeleteRequest:
			s.DeleteInsight = v.ID
		case ObjectiveSet:
			desc := v.Description
			s.Objective = &desc
		case ObjectiveComplete:
			s.ObjectiveDone = true
		}
	}
	return s
}

// Hint returns the text between the first HINT_START and the HINT_END
// following it, cleaned of any other tag
func Hint(raw string) (string, bool) {
	start := -1
	for _, tok := range Tokenize(raw) {
		if tok.Partial {
			break
		}
		switch {
		case tok.Name == TagHintStart && start < 0:
			start = tok.End
		case tok.Name == TagHintEnd && start >= 0:
			hint := strings.TrimSpace(Clean(raw[start:tok.Start]))
			return hint, hint != ""
		}
	}
	return "", false
}
