package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"game-companion/chat"
	"game-companion/insight"
	"game-companion/llm"
	"game-companion/model"
	"game-companion/utils"
)

const screenshotPrompt = "A player needs help. First, identify the game from this screenshot. Then, provide a spoiler-free hint and some interesting lore about what's happening in the image."

// DefaultSystemPrompt teaches the model the directive tags the reducer reads
const DefaultSystemPrompt = `You are a spoiler-free gaming companion.
Start every answer with [OTAKON_GAME_ID: <game title>] and [OTAKON_CONFIDENCE: high|low] when you can tell which game the player is asking about.
Add [OTAKON_GENRE: <genre>] and [OTAKON_GAME_PROGRESS: <0-100>] when you can estimate them, and [OTAKON_GAME_IS_UNRELEASED: true] for games that are not out yet.
Wrap the single most useful hint in [OTAKON_HINT_START] and [OTAKON_HINT_END].
Use [OTAKON_INSIGHT_UPDATE: {"id": "...", "content": "..."}] to add notes to an insight tab, [OTAKON_OBJECTIVE_SET: {"description": "..."}] and [OTAKON_OBJECTIVE_COMPLETE: true] to track the current objective, [OTAKON_INVENTORY_ANALYSIS: {"items": [...]}] for items seen on screen and [OTAKON_SUGGESTIONS: ["...", "..."]] for follow-up questions.
Never reveal story spoilers the player has not reached.`

// contextNotes renders the per-thread notes prepended to the prompt of a
// dedicated thread
func contextNotes(conv model.Conversation) string {
	if conv.IsDefault() {
		return ""
	}
	var b strings.Builder
	if story, ok := conv.Insights["story_so_far"]; ok && story.Content != "" && story.Content != insight.LoadingSentinel {
		fmt.Fprintf(&b, "[META_STORY_SO_FAR: %s]\n", story.Content)
	}
	if conv.ActiveObjective != nil {
		if data, err := json.Marshal(conv.ActiveObjective); err == nil {
			fmt.Fprintf(&b, "[META_ACTIVE_OBJECTIVE: %s]\n", data)
		}
	}
	if len(conv.Inventory) > 0 {
		fmt.Fprintf(&b, "[META_INVENTORY: %s]\n", strings.Join(conv.Inventory, ", "))
	}
	if conv.Progress != nil {
		fmt.Fprintf(&b, "[META_GAME_PROGRESS: %d]\n", *conv.Progress)
	}
	return b.String()
}

// isTranscript reports whether a message belongs in the model history.
// Placeholders, cancelled replies, errors and reducer notices stay out.
func isTranscript(m model.ChatMessage) bool {
	text := strings.TrimSpace(m.Text)
	if text == "" || text == insight.LoadingSentinel || text == chat.CancelledText {
		return false
	}
	if strings.HasSuffix(m.ID, chat.NoticeSuffix) {
		return false
	}
	return !strings.HasPrefix(text, errorPrefix)
}

// buildMessages assembles the provider request: system prompt, the recent
// history of conv, then the new user turn with its context notes and images.
func buildMessages(system string, conv model.Conversation, user model.ChatMessage, limit int, log *utils.Logger) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: system}}

	var history []model.ChatMessage
	for _, m := range conv.Messages {
		if m.ID == user.ID {
			break
		}
		if isTranscript(m) {
			history = append(history, m)
		}
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	for _, m := range history {
		role := "user"
		if m.Role == model.RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}

	text := strings.TrimSpace(user.Text)
	if text == "" {
		text = screenshotPrompt
	}
	turn := llm.Message{Role: "user", Content: contextNotes(conv) + text}
	for _, img := range user.Images {
		mime, data, err := utils.DecodeDataURL(img)
		if err != nil {
			log.Warn("Skipping image of message %s: %v", user.ID, err)
			continue
		}
		turn.Attachments = append(turn.Attachments, llm.Attachment{MimeType: mime, Data: data})
	}
	return append(msgs, turn)
}
