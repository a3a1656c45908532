package remote

import (
	"testing"
	"time"

	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-companion/model"
)

func TestRowRoundTrip(t *testing.T) {
	progress := 40
	rec := model.Record{
		ID:    "elden-ring",
		Title: "Elden Ring",
		Messages: []model.ChatMessage{
			{ID: "u1", Role: model.RoleUser, Text: "hi"},
		},
		Insights: []model.Insight{{ID: "lore", Title: "Lore", Status: model.StatusLoaded}},
		Context: model.RecordContext{
			Progress: &progress,
			Genre:    "Action RPG",
			IsPinned: true,
		},
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	row, err := toRow("user-1", rec)
	require.NoError(t, err)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, pgtype.Present, row.Insights.Status)

	got, err := fromRow(*row)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRowWithoutInsightsStaysNull(t *testing.T) {
	row, err := toRow("user-1", model.Record{ID: "x", Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, pgtype.Null, row.Insights.Status)
	assert.Equal(t, "[]", string(row.Messages.Bytes))

	got, err := fromRow(*row)
	require.NoError(t, err)
	assert.Nil(t, got.Insights)
	assert.Empty(t, got.Messages)
}

func TestNewWithDBRequiresUser(t *testing.T) {
	_, err := NewWithDB(nil, "")
	assert.ErrorIs(t, err, ErrNoUser)
}
