package directive

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"game-companion/model"
)

// Task categories
const (
	CategoryQuest       = "quest"
	CategoryBoss        = "boss"
	CategoryExploration = "exploration"
	CategoryItem        = "item"
	CategoryCharacter   = "character"
	CategoryCustom      = "custom"
)

const taskConfidence = 0.8

var taskPatterns = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{CategoryQuest, compileAll(
		`(?:find|locate|retrieve|obtain|get|collect)\s+([^.!?]+(?:in|at|from|near|within)\s+[^.!?]+)`,
		`(?:complete|finish|fulfill)\s+([^.!?]+(?:quest|mission|task|objective))`,
		`(?:talk to|speak with|meet|visit)\s+([^.!?]+(?:about|regarding|concerning)\s+[^.!?]+)`,
	)},
	{CategoryBoss, compileAll(
		`(?:defeat|beat|overcome|fight|battle|challenge)\s+([^.!?]+(?:boss|enemy|opponent|adversary))`,
		`(?:how to|tips for|strategy to)\s+(?:defeat|beat|fight)\s+([^.!?]+)`,
	)},
	{CategoryExploration, compileAll(
		`(?:explore|investigate|search|visit|go to|travel to)\s+([^.!?]+)`,
		`(?:check|examine|look at|inspect)\s+([^.!?]+)`,
	)},
	{CategoryItem, compileAll(
		`(?:gather|collect|obtain|acquire|find|get)\s+([^.!?]+(?:items?|materials?|essences?|fragments?))`,
		`(?:craft|create|build|forge)\s+([^.!?]+(?:using|with|from)\s+[^.!?]+)`,
	)},
	{CategoryCharacter, compileAll(
		`(?:help|assist|aid|support)\s+([^.!?]+(?:with|regarding|about)\s+[^.!?]+)`,
		`(?:rescue|save|free|liberate)\s+([^.!?]+(?:from|in|at)\s+[^.!?]+)`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DetectTasks finds actionable tasks in a response text and its suggestion
// list. Suggestions that match no pattern become custom tasks. Titles are
// deduplicated case-insensitively, first occurrence wins.
func DetectTasks(text string, suggestions []string) []model.DetectedTask {
	var tasks []model.DetectedTask
	seen := make(map[string]bool)
	add := func(title, description, category, source string) {
		key := strings.ToLower(title)
		if seen[key] {
			return
		}
		seen[key] = true
		tasks = append(tasks, model.DetectedTask{
			Title:       title,
			Description: description,
			Category:    category,
			Confidence:  taskConfidence,
			Source:      source,
		})
	}

	lower := strings.ToLower(text)
	source := excerpt(lower)
	for _, group := range taskPatterns {
		for _, re := range group.patterns {
			for _, m := range re.FindAllStringSubmatch(lower, -1) {
				task := strings.TrimSpace(m[1])
				if n := utf8.RuneCountInString(task); n <= 5 || n >= 100 {
					continue
				}
				add(capitalize(task), "Task detected from AI response: "+task, group.category, source)
			}
		}
	}

	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		add(s, "Suggested follow-up: "+s, classify(strings.ToLower(s)), "suggestions")
	}
	return tasks
}

func classify(s string) string {
	for _, group := range taskPatterns {
		for _, re := range group.patterns {
			if re.MatchString(s) {
				return group.category
			}
		}
	}
	return CategoryCustom
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > 100 {
		r = r[:100]
	}
	return string(r) + "..."
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
