package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-companion/model"
	"game-companion/session"
	"game-companion/utils"
)

func TestPrinterOnlyPrintsGrowth(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.chunk("m1", "")
	p.chunk("m1", "Go")
	p.chunk("m1", "Go left")
	p.chunk("m1", "Go")
	p.chunk("m1", "Go left at the tree.")
	p.done("m1")

	assert.Equal(t, "Go left at the tree.\n", buf.String())
}

func TestLastModelMessage(t *testing.T) {
	c := model.NewCollection(time.Now())
	_, ok := lastModelMessage(c)
	assert.False(t, ok)

	def := model.AppendMessages(c.Conversations[model.DefaultConversationID],
		model.ChatMessage{ID: "u1", Role: model.RoleUser, Text: "hi"},
		model.ChatMessage{ID: "m1", Role: model.RoleModel, Text: "hello"},
		model.ChatMessage{ID: "u2", Role: model.RoleUser, Text: "again"},
	)
	c.Conversations[model.DefaultConversationID] = def

	id, ok := lastModelMessage(c)
	require.True(t, ok)
	assert.Equal(t, "m1", id)
}

func TestNotices(t *testing.T) {
	c := model.NewCollection(time.Now())
	c.Conversations[model.DefaultConversationID] = model.AppendMessages(c.Conversations[model.DefaultConversationID],
		model.ChatMessage{ID: "m1", Role: model.RoleModel, Text: "Looks like Hades."},
		model.ChatMessage{ID: "m1-notice", Role: model.RoleModel, Text: "Send a screenshot to confirm."},
	)

	got := notices(c, session.Result{ConversationID: model.DefaultConversationID, MessageID: "m1"})
	assert.Equal(t, []string{"Send a screenshot to confirm."}, got)
	assert.Empty(t, notices(c, session.Result{ConversationID: "missing", MessageID: "m1"}))
}

func TestNewProviderKinds(t *testing.T) {
	ctx := context.Background()

	p, err := newProvider(ctx, "ollama", utils.ProviderConfig{Kind: "openai", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = newProvider(ctx, "claude", utils.ProviderConfig{Kind: "claude", DisplayName: "Claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "Claude", p.Name())
}
