package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Elden Ring", "elden-ring"},
		{"  The Legend of Zelda: Tears of the Kingdom ", "the-legend-of-zelda-tears-of-the-kingdom"},
		{"Hollow Knight: Silksong!!", "hollow-knight-silksong"},
		{"Final Fantasy VII", "final-fantasy-vii"},
		{"Pokémon Red", "pok-mon-red"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.title))
		})
	}

	assert.Equal(t, NormalizeID("Elden Ring!"), NormalizeID("Elden Ring?"))
}

func TestSortOrder(t *testing.T) {
	convs := map[string]Conversation{
		DefaultConversationID: NewConversation(DefaultConversationID, DefaultConversationTitle, now),
		"a":                   {ID: "a", IsPinned: true, LastInteractionTimestamp: now.Add(5 * time.Second)},
		"b":                   {ID: "b", LastInteractionTimestamp: now.Add(10 * time.Second)},
		"c":                   {ID: "c", CreatedAt: now.Add(20 * time.Second)},
	}

	got := SortOrder(convs, []string{"b", "c", DefaultConversationID, "a"})
	assert.Equal(t, []string{DefaultConversationID, "a", "c", "b"}, got)
}

func TestEnsureDefault(t *testing.T) {
	t.Run("adds missing default and repairs order", func(t *testing.T) {
		c := Collection{
			Conversations: map[string]Conversation{
				"zelda": {ID: "zelda", LastInteractionTimestamp: now},
			},
			Order:    []string{"zelda", "zelda", "gone"},
			ActiveID: "gone",
		}
		out := c.EnsureDefault(now)

		assert.Equal(t, []string{DefaultConversationID, "zelda"}, out.Order)
		assert.Equal(t, DefaultConversationID, out.ActiveID)
		assert.Len(t, c.Conversations, 1, "input untouched")
	})

	t.Run("keeps a valid active id", func(t *testing.T) {
		c := NewCollection(now)
		c.Conversations["zelda"] = NewConversation("zelda", "Zelda", now)
		c.ActiveID = "zelda"

		out := c.EnsureDefault(now)
		assert.Equal(t, "zelda", out.ActiveID)
		assert.ElementsMatch(t, []string{DefaultConversationID, "zelda"}, out.Order)
	})
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Collection{}.IsEmpty())
	assert.True(t, NewCollection(now).IsEmpty())

	c := NewCollection(now)
	def := AppendMessages(c.Conversations[DefaultConversationID], ChatMessage{ID: "1", Role: RoleUser, Text: "hi"})
	c.Conversations[DefaultConversationID] = def
	assert.False(t, c.IsEmpty())
}

func TestApplyContext(t *testing.T) {
	conv := NewConversation("elden-ring", "Elden Ring", now)
	over, under := 140, -3
	objective := "Reach the Roundtable Hold"

	out := ApplyContext(conv, ContextPatch{Progress: &over, Genre: "Action RPG", Objective: &objective})
	require.NotNil(t, out.Progress)
	assert.Equal(t, 100, *out.Progress)
	assert.Equal(t, "Action RPG", out.Genre)
	assert.False(t, out.ActiveObjective.IsCompleted)
	assert.Nil(t, conv.Progress, "input untouched")

	out = ApplyContext(out, ContextPatch{Progress: &under, ObjectiveComplete: true})
	assert.Equal(t, 0, *out.Progress)
	assert.Equal(t, "Action RPG", out.Genre)
	assert.True(t, out.ActiveObjective.IsCompleted)

	out = ApplyContext(NewConversation("x", "X", now), ContextPatch{ObjectiveComplete: true})
	assert.Nil(t, out.ActiveObjective)
}

func TestRecordRoundTrip(t *testing.T) {
	progress := 42
	conv := NewConversation("elden-ring", "Elden Ring", now)
	conv.Messages = []ChatMessage{
		{ID: "u1", Role: RoleUser, Text: "Where now?", Images: []string{"data:image/png;base64,AAAA"}},
		{ID: "m1", Role: RoleModel, Text: "Head north."},
	}
	conv.Progress = &progress
	conv.Genre = "Action RPG"
	conv.Inventory = []string{"Flask"}
	conv.IsPinned = true
	conv.LastInteractionTimestamp = now.Add(time.Minute)
	conv = WithInsights(conv, []Insight{
		{ID: "story_so_far", Title: "Story So Far", Content: "You woke up.", Status: StatusLoaded, LastUpdated: now},
		{ID: "otaku-diary", Title: "Otaku Diary", Status: StatusLoaded, LastUpdated: now},
	})

	data, err := json.Marshal(ToRecord(conv))
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	got := FromRecord(rec)

	assert.Equal(t, conv.Messages, got.Messages)
	assert.Equal(t, []string{"story_so_far", "otaku-diary"}, got.InsightsOrder)
	assert.Equal(t, "You woke up.", got.Insights["story_so_far"].Content)
	assert.Equal(t, 42, *got.Progress)
	assert.Equal(t, "Action RPG", got.Genre)
	assert.True(t, got.IsPinned)
	assert.True(t, conv.LastInteractionTimestamp.Equal(got.LastInteractionTimestamp))
	assert.True(t, got.LastTrailerTimestamp.IsZero())
}

func TestRecordWithoutInsights(t *testing.T) {
	got := FromRecord(ToRecord(NewConversation(DefaultConversationID, DefaultConversationTitle, now)))
	assert.False(t, got.HasInsights())
	assert.Empty(t, got.Messages)
}

func TestSnapshotKeepsUnorderedThreads(t *testing.T) {
	c := NewCollection(now)
	c.Conversations["stray"] = NewConversation("stray", "Stray", now)

	snap := SnapshotOf(c)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, DefaultConversationID, snap.Records[0].ID)
	assert.Equal(t, "stray", snap.Records[1].ID)

	back := snap.Collection(now)
	assert.Equal(t, []string{DefaultConversationID, "stray"}, back.Order)
}
