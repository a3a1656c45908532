package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-companion/model"
)

func TestDataURLRoundTrip(t *testing.T) {
	url := EncodeDataURL("image/png", []byte{1, 2, 3})
	assert.Equal(t, "data:image/png;base64,AQID", url)

	mimeType, data, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestDecodeDataURLRejectsOtherStrings(t *testing.T) {
	for _, in := range []string{"", "https://example.com/a.png", "data:image/png,raw", "data:;base64,AQID"} {
		_, _, err := DecodeDataURL(in)
		assert.ErrorIs(t, err, ErrNotDataURL, in)
	}
}

func TestConfigDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\nsync:\n  debounce_ms: 50\nllm_providers:\n  openai:\n    kind: openai\n    enabled: true\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.Debounce())
	assert.Equal(t, time.Hour, cfg.Session.Cooldown())

	name, pc, err := cfg.ActiveProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "openai", pc.Kind)

	cfg.Provider = "missing"
	_, _, err = cfg.ActiveProvider()
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Session.Pro = true
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, loaded.Session.Pro)
	assert.Equal(t, cfg.Provider, loaded.Provider)
}

func TestExportImport(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := model.NewCollection(now)
	conv := model.NewConversation("elden-ring", "Elden Ring", now)
	conv.Messages = []model.ChatMessage{{ID: "m1", Role: model.RoleUser, Text: "Where now?"}}
	c.Conversations[conv.ID] = conv
	c.Order = append(c.Order, conv.ID)

	path := filepath.Join(t.TempDir(), "all.json")
	require.NoError(t, ExportAllConversations(c, path))

	records, err := ImportConversations(path)
	require.NoError(t, err)
	// the empty default thread is skipped
	require.Len(t, records, 1)
	assert.Equal(t, "elden-ring", records[0].ID)
}

func TestRenderMarkdown(t *testing.T) {
	progress := 42
	conv := model.Conversation{
		Title:    "Hollow Knight",
		Genre:    "Metroidvania",
		Progress: &progress,
		Messages: []model.ChatMessage{
			{ID: "1", Role: model.RoleUser, Text: "Hi"},
			{ID: "2", Role: model.RoleModel, Text: "Hello"},
		},
	}
	md := RenderMarkdown(conv)
	assert.Contains(t, md, "# Hollow Knight")
	assert.Contains(t, md, "**Progress**: 42%")
	assert.Contains(t, md, "## Companion\n\nHello")
}

func TestGenerateExportFilename(t *testing.T) {
	name := GenerateExportFilename("a/b:c", FormatMarkdown)
	assert.Regexp(t, `^a_b_c_\d{8}_\d{6}\.md$`, name)
}
