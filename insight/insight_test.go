package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-companion/llm"
	"game-companion/model"
	"game-companion/utils"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestLifecycleHappyPath(t *testing.T) {
	ins := model.Insight{ID: "lore", Title: "Lore", Status: model.StatusPlaceholder}

	ins, err := Request(ins, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLoading, ins.Status)
	assert.Equal(t, LoadingSentinel, ins.Content)

	ins, err = Chunk(ins, "Once ", now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStreaming, ins.Status)
	assert.Equal(t, "Once ", ins.Content)

	ins, err = Chunk(ins, "upon a time", now)
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time", ins.Content)

	ins, err = Finish(ins, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLoaded, ins.Status)
	assert.True(t, ins.IsNew)
}

func TestLifecycleRejectsInvalidTransitions(t *testing.T) {
	placeholder := model.Insight{ID: "a", Status: model.StatusPlaceholder}
	_, err := Chunk(placeholder, "x", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Finish(placeholder, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	streaming := model.Insight{ID: "a", Status: model.StatusStreaming}
	_, err = Request(streaming, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestErrorLeavesOnlyThroughRequest(t *testing.T) {
	ins := Fail(model.Insight{ID: "a", Status: model.StatusLoading, Content: LoadingSentinel}, "boom", now)
	assert.Equal(t, model.StatusError, ins.Status)
	assert.Equal(t, "boom", ins.Content)

	_, err := Chunk(ins, "x", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Finish(ins, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ins, err = Request(ins, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLoading, ins.Status)
}

func TestApplyUpdate(t *testing.T) {
	loading := model.Insight{ID: "a", Status: model.StatusLoading, Content: LoadingSentinel}
	got := ApplyUpdate(loading, "Fresh", now)
	assert.Equal(t, "Fresh", got.Content)
	assert.Equal(t, model.StatusLoaded, got.Status)
	assert.True(t, got.IsNew)

	loaded := model.Insight{ID: "a", Status: model.StatusLoaded, Content: "Old"}
	got = ApplyUpdate(loaded, "New", now)
	assert.Equal(t, "Old\n\nNew", got.Content)
	assert.True(t, got.IsNew)
}

func TestUpdateIgnoresUnknownTab(t *testing.T) {
	conv := model.NewConversation("c", "C", now)
	_, ok := Update(conv, "nope", "x", now)
	assert.False(t, ok)
}

func TestInstantiate(t *testing.T) {
	conv := model.NewConversation("elden-ring", "Elden Ring", now)

	free, pending := Instantiate(conv, "Action RPG", false, now)
	assert.Empty(t, pending)
	assert.Equal(t, []string{DiaryID}, free.InsightsOrder)

	pro, pending := Instantiate(conv, "Action RPG", true, now)
	require.Len(t, pending, len(Templates["Action RPG"]))
	assert.Equal(t, DiaryID, pro.InsightsOrder[0])
	for _, tab := range pending {
		ins := pro.Insights[tab.ID]
		assert.Equal(t, model.StatusLoading, ins.Status)
		assert.Equal(t, LoadingSentinel, ins.Content)
	}
	// the input is untouched
	assert.Nil(t, conv.Insights)
}

func TestInstantiateFallsBackToDefaultAndKeepsExisting(t *testing.T) {
	conv := model.NewConversation("x", "X", now)
	conv = Put(conv, model.Insight{ID: "game_lore", Title: "Mine", Content: "kept", Status: model.StatusLoaded})

	out, pending := Instantiate(conv, "Unknown Genre", true, now)
	assert.Len(t, pending, len(Templates[DefaultGenre])-1)
	assert.Equal(t, "kept", out.Insights["game_lore"].Content)
}

func TestCreateDeleteReorder(t *testing.T) {
	conv := model.NewConversation("x", "X", now)
	conv, ins, err := Create(conv, "Boss Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, "boss-notes", ins.ID)
	assert.Equal(t, model.StatusPlaceholder, ins.Status)

	_, _, err = Create(conv, "boss notes", now)
	assert.ErrorIs(t, err, ErrDuplicate)
	_, _, err = Create(conv, "!!!", now)
	assert.ErrorIs(t, err, ErrEmptyTitle)

	conv, _, err = Create(conv, "Lore", now)
	require.NoError(t, err)
	conv = Reorder(conv, []string{"lore", "ghost"})
	assert.Equal(t, []string{"lore", "boss-notes"}, conv.InsightsOrder)

	conv, err = Delete(conv, "lore")
	require.NoError(t, err)
	assert.Equal(t, []string{"boss-notes"}, conv.InsightsOrder)
	_, err = Delete(conv, "lore")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadAndFeedback(t *testing.T) {
	conv := Put(model.NewConversation("x", "X", now), model.Insight{ID: "a", IsNew: true, Status: model.StatusLoaded})
	conv, err := MarkRead(conv, "a")
	require.NoError(t, err)
	assert.False(t, conv.Insights["a"].IsNew)

	conv, err = SetFeedback(conv, "a", model.FeedbackUp)
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackUp, conv.Insights["a"].Feedback)
}

func TestApplyModification(t *testing.T) {
	conv := Put(model.NewConversation("x", "X", now), model.Insight{ID: "tips", Title: "Tips", Content: "old", Status: model.StatusLoaded})

	conv, err := ApplyModification(conv, model.PendingInsightModification{ID: "tips", Type: model.ModificationModify, Title: "Pro Tips", Content: "new"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Pro Tips", conv.Insights["tips"].Title)
	assert.Equal(t, "new", conv.Insights["tips"].Content)

	conv, err = ApplyModification(conv, model.PendingInsightModification{ID: "routes", Type: model.ModificationAdd, Title: "Routes", Content: "left"}, now)
	require.NoError(t, err)
	assert.Equal(t, "left", conv.Insights["routes"].Content)

	conv, err = ApplyModification(conv, model.PendingInsightModification{ID: "tips", Type: model.ModificationRemove}, now)
	require.NoError(t, err)
	_, ok := conv.Insights["tips"]
	assert.False(t, ok)
}

type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeProvider) Name() string          { return "fake" }
func (f *fakeProvider) Models() []string      { return nil }
func (f *fakeProvider) ValidateConfig() error { return nil }

func TestGeneratorRepairsAndCaches(t *testing.T) {
	tabs := []Tab{
		{ID: "story_so_far", Title: "Story So Far"},
		{ID: "game_lore", Title: "Relevant Lore"},
	}
	// fenced and missing the closing brace
	p := &fakeProvider{reply: "```json\n{\"story_so_far\": {\"title\": \"Story\", \"content\": \"You woke up.\"}, \"game_lore\": {\"content\": \"Old gods.\"}\n```"}
	g, err := NewGenerator(p, 0, utils.NewNopLogger())
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "Elden Ring", "Action RPG", 10, tabs)
	require.NoError(t, err)
	assert.Equal(t, "You woke up.", out["story_so_far"].Content)
	assert.Equal(t, "Story", out["story_so_far"].Title)
	assert.Equal(t, "Old gods.", out["game_lore"].Content)
	assert.Equal(t, "Relevant Lore", out["game_lore"].Title)

	_, err = g.Generate(context.Background(), "elden ring", "action rpg", 10, tabs)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestGeneratorNoContent(t *testing.T) {
	g, err := NewGenerator(&fakeProvider{reply: `{"other": "x"}`}, 4, utils.NewNopLogger())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "A", "B", 0, []Tab{{ID: "lore"}})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFillBatch(t *testing.T) {
	conv, pending := Instantiate(model.NewConversation("x", "X", now), DefaultGenre, true, now)
	// the user edits one tab while the batch runs
	conv, err := Overwrite(conv, "build_guide", "", "my build", now)
	require.NoError(t, err)

	results := map[string]Generated{"story_so_far": {Content: "So far"}}
	conv = FillBatch(conv, pending, results, now)

	assert.Equal(t, model.StatusLoaded, conv.Insights["story_so_far"].Status)
	assert.Equal(t, "So far", conv.Insights["story_so_far"].Content)
	assert.Equal(t, model.StatusError, conv.Insights["game_lore"].Status)
	assert.Equal(t, "my build", conv.Insights["build_guide"].Content)
	assert.Equal(t, model.StatusLoaded, conv.Insights["build_guide"].Status)
}
