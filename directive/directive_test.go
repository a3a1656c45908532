package directive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-companion/model"
)

type recordingWarner struct {
	warnings []string
}

func (r *recordingWarner) Warn(format string, v ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, v...))
}

func TestCleanRoundTrip(t *testing.T) {
	raw := "[GAME_ID: Elden Ring][CONFIDENCE: high][GAME_PROGRESS: 42]Here's a hint."
	assert.Equal(t, "Here's a hint.", Clean(raw))

	s := Summarize(Parse(raw, Options{HasImages: true}))
	assert.Equal(t, "Elden Ring", s.GameName)
	assert.True(t, s.HighConfidence)
	require.NotNil(t, s.Progress)
	assert.Equal(t, 42, *s.Progress)
}

func TestCleanStripsPartialTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare bracket", "Hello [", "Hello"},
		{"name prefix", "Hello [GAME_PR", "Hello"},
		{"namespace prefix", "Hello [OTAK", "Hello"},
		{"open scalar", "Hello [GAME_ID: Eld", "Hello"},
		{"open structured", `Hello [INSIGHT_UPDATE: {"id": "lore", "content": "The ki`, "Hello"},
		{"marker", "Hello [DEBUG_TRACE: x] world", "Hello  world"},
		{"meta family", "Hello [METADATA: 1]", "Hello"},
		{"namespaced", "[OTAKON_GAME_ID: Hollow Knight]Go left.", "Go left."},
		{"bracket inside string", `[INSIGHT_UPDATE: {"id": "lore", "content": "a]b"}]Done`, "Done"},
		{"hint markers", "[HINT_START]Use fire.[HINT_END] More text", "Use fire. More text"},
		{"unknown tag kept", "[Note] keep [1, 2]", "[Note] keep [1, 2]"},
		{"lookalike kept", "An [IDEA] stays", "An [IDEA] stays"},
		{"nested leftovers", "[[GAME_ID: x]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"[GAME_ID: A] [GENRE: RPG] body",
		"[[[GAME_ID: x]]]",
		"[ [ID] [",
		"text [SUGGESTIONS: [\"a\", \"b\"]] tail [TRIUMPH: {",
		"[HINT_START][HINT_END][HINT_START]",
		"  [CONFIDENCE: high]  \n\n  ",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestFinalText(t *testing.T) {
	raw := "[GAME_ID: X]Intro\nGame Progress: 40%\n\n\n\nMore  words [GENRE: RPG]"
	assert.Equal(t, "Intro\n\nMore words", FinalText(raw))
}

func TestParseOrderAndPayloads(t *testing.T) {
	raw := `[OBJECTIVE_COMPLETE: true]` +
		`[OBJECTIVE_SET: {"description": "Find the Sunstone"}]` +
		`[INSIGHT_DELETE_REQUEST: {"id": "lore"}]` +
		`[INSIGHT_MODIFY_PENDING: {"id": "tips", "title": "Tips", "content": "new"}]` +
		`[INSIGHT_UPDATE: {"id": "story", "content": "chapter 2"}]` +
		`[SUGGESTIONS: ["What next?", "Where is the key?"]]` +
		`[INVENTORY_ANALYSIS: {"items": ["Sword", "Potion"]}]` +
		`[TRIUMPH: {"type": "boss_defeated", "name": "Margit"}]` +
		`[GAME_IS_UNRELEASED: true]` +
		`[GAME_PROGRESS: 30]` +
		`[CONFIDENCE: high]` +
		`[GENRE: Action RPG]` +
		`[GAME_ID: Elden Ring]` +
		`Text.`

	dirs := Parse(raw, Options{HasImages: true})
	var tags []string
	for _, d := range dirs {
		tags = append(tags, d.Tag())
	}
	assert.Equal(t, []string{
		TagGameID, TagGenre, TagConfidence, TagGameProgress, TagGameIsUnreleased,
		TagTriumph, TagInventoryAnalysis, TagSuggestions, TagInsightUpdate,
		TagInsightModifyPending, TagInsightDeleteRequest, TagObjectiveSet, TagObjectiveComplete,
	}, tags)

	s := Summarize(dirs)
	assert.Equal(t, "Action RPG", s.Genre)
	assert.True(t, s.Unreleased)
	assert.Equal(t, &model.Triumph{Type: "boss_defeated", Name: "Margit"}, s.Triumph)
	assert.Equal(t, []string{"Sword", "Potion"}, s.Inventory)
	assert.Equal(t, []string{"What next?", "Where is the key?"}, s.Suggestions)
	assert.Equal(t, &InsightUpdate{ID: "story", Content: "chapter 2"}, s.InsightUpdate)
	require.NotNil(t, s.Modification)
	assert.Equal(t, model.ModificationModify, s.Modification.Type)
	assert.Equal(t, "Tips", s.Modification.Title)
	assert.Equal(t, "lore", s.DeleteInsight)
	require.NotNil(t, s.Objective)
	assert.Equal(t, "Find the Sunstone", *s.Objective)
	assert.True(t, s.ObjectiveDone)
}

func TestParseFirstOccurrenceWins(t *testing.T) {
	s := Summarize(Parse("[GAME_ID: First][GAME_ID: Second]", Options{}))
	assert.Equal(t, "First", s.GameName)
}

func TestParseDropsMalformedPayloads(t *testing.T) {
	w := &recordingWarner{}
	raw := `[TRIUMPH: {"type": bad}][INVENTORY_ANALYSIS: {"things": []}][CONFIDENCE: maybe][GAME_ID: Celeste]ok`

	s := Summarize(Parse(raw, Options{Log: w}))
	assert.Nil(t, s.Triumph)
	assert.Nil(t, s.Inventory)
	assert.False(t, s.HighConfidence)
	assert.Equal(t, "Celeste", s.GameName)
	assert.Len(t, w.warnings, 3)
	assert.Equal(t, "ok", Clean(raw))
}

func TestUnterminatedScalarStaysOnItsLine(t *testing.T) {
	raw := "[GAME_ID: Elden Ring\nHere's a hint. [CONFIDENCE: high] More text."

	s := Summarize(Parse(raw, Options{}))
	assert.Empty(t, s.GameName)
	assert.True(t, s.HighConfidence)
	assert.Equal(t, "[GAME_ID: Elden Ring\nHere's a hint.  More text.", Clean(raw))

	s = Summarize(Parse("[GAME_ID: Elden [GAME_ID: Hades] Ring]", Options{}))
	assert.Equal(t, "Hades", s.GameName)

	toks := Tokenize("Intro [GENRE: Action RP")
	require.Len(t, toks, 1)
	assert.True(t, toks[0].Partial)
}

func TestParseIgnoresPartialTags(t *testing.T) {
	dirs := Parse(`Intro [INSIGHT_UPDATE: {"id": "lore"`, Options{})
	assert.Empty(t, dirs)
}

func TestParseProgressGating(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		hasImages bool
		want      bool
	}{
		{"high confidence with images", "[GAME_ID: A][CONFIDENCE: high][GAME_PROGRESS: 10]", true, true},
		{"identified text only", "[GAME_ID: A][CONFIDENCE: low][GAME_PROGRESS: 10]", false, true},
		{"low confidence with images", "[GAME_ID: A][CONFIDENCE: low][GAME_PROGRESS: 10]", true, false},
		{"no identity no confidence", "[GAME_PROGRESS: 10]", false, false},
		{"high confidence without identity", "[CONFIDENCE: high][GAME_PROGRESS: 10]", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(Parse(tt.raw, Options{HasImages: tt.hasImages}))
			assert.Equal(t, tt.want, s.Progress != nil)
		})
	}
}

func TestParseDoesNotClampProgress(t *testing.T) {
	s := Summarize(Parse("[CONFIDENCE: high][GAME_PROGRESS: 140]", Options{}))
	require.NotNil(t, s.Progress)
	assert.Equal(t, 140, *s.Progress)
}

func TestSummaryEmpty(t *testing.T) {
	assert.True(t, Summarize(Parse("Just chatting.", Options{})).Empty())
	assert.False(t, Summarize(Parse("[GENRE: Puzzle]", Options{})).Empty())
}

func TestHint(t *testing.T) {
	hint, ok := Hint("Intro [OTAKON_HINT_START] Try the [GAME_ID: X]left door. [OTAKON_HINT_END] outro")
	require.True(t, ok)
	assert.Equal(t, "Try the left door.", hint)

	_, ok = Hint("no hint here")
	assert.False(t, ok)

	_, ok = Hint("[HINT_START]never closed")
	assert.False(t, ok)
}

func TestTokenizeStructuredFallback(t *testing.T) {
	toks := Tokenize(`[SUGGESTIONS: ["a"] trailing]`)
	require.Len(t, toks, 1)
	assert.False(t, toks[0].Partial)
	assert.Equal(t, `["a"`, toks[0].Payload)
}

func TestDetectTasks(t *testing.T) {
	text := "You should defeat the fire giant boss. Then explore the haunted forest."
	tasks := DetectTasks(text, []string{"the FIRE giant boss", "Where is the next bonfire?"})

	require.Len(t, tasks, 3)
	assert.Equal(t, "The fire giant boss", tasks[0].Title)
	assert.Equal(t, CategoryBoss, tasks[0].Category)
	assert.Equal(t, "The haunted forest", tasks[1].Title)
	assert.Equal(t, CategoryExploration, tasks[1].Category)
	assert.Equal(t, "Where is the next bonfire?", tasks[2].Title)
	assert.Equal(t, CategoryCustom, tasks[2].Category)
	assert.Equal(t, "suggestions", tasks[2].Source)
	for _, task := range tasks {
		assert.Equal(t, 0.8, task.Confidence)
	}
}
