// Package chat holds the conversation reducer: pure transitions over a
// model.Collection that append a turn, then fold the directives of the
// finished response into the right thread.
package chat

import (
	"errors"
	"fmt"
	"time"

	"game-companion/directive"
	"game-companion/insight"
	"game-companion/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrDefaultThread        = errors.New("operation not allowed on the default thread")
	ErrMissingDefault       = errors.New("collection has no default thread")
)

// Turn identifies a finished model response
type Turn struct {
	SourceID   string
	UserMsgID  string
	ModelMsgID string
	Raw        string
	HasImages  bool
	Pro        bool
	Log        directive.Warner
}

// Outcome reports what Complete decided and what the caller still has to do
type Outcome struct {
	TargetID  string
	Promoted  bool
	Created   bool
	FinalText string
	Summary   directive.Summary
	// Pending waits for user confirmation
	Pending        *model.PendingInsightModification
	DeletedInsight string
	Tasks          []model.DetectedTask
	Hint           string
	// PendingTabs were instantiated loading and need a batch generation
	PendingTabs []insight.Tab
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
}

// Begin appends the user message and the model placeholder to the source
// thread. This happens before any directive is known.
func Begin(c model.Collection, sourceID string, user, placeholder model.ChatMessage, now time.Time) (model.Collection, error) {
	src, ok := c.Get(sourceID)
	if !ok {
		return c, notFound(sourceID)
	}
	out := c.Clone()
	src = model.AppendMessages(src, user, placeholder)
	out.Conversations[sourceID] = model.Touch(src, now)
	out.Order = model.SortOrder(out.Conversations, out.Order)
	return out, nil
}

// Complete folds a finished response into the collection
func Complete(c model.Collection, turn Turn, now time.Time) (model.Collection, Outcome, error) {
	src, ok := c.Get(turn.SourceID)
	if !ok {
		return c, Outcome{}, notFound(turn.SourceID)
	}
	out := c.Clone()

	s := directive.Summarize(directive.Parse(turn.Raw, directive.Options{HasImages: turn.HasImages, Log: turn.Log}))
	text := directive.FinalText(turn.Raw)
	res := Outcome{
		TargetID:  turn.SourceID,
		FinalText: text,
		Summary:   s,
		Tasks:     directive.DetectTasks(text, s.Suggestions),
	}
	if hint, ok := directive.Hint(turn.Raw); ok {
		res.Hint = hint
	}

	final := model.ChatMessage{
		ID:          turn.ModelMsgID,
		Role:        model.RoleModel,
		Text:        res.FinalText,
		Suggestions: s.Suggestions,
		Triumph:     s.Triumph,
	}
	idx := src.MessageIndex(turn.ModelMsgID)
	if idx < 0 {
		return c, Outcome{}, fmt.Errorf("%w: %s", ErrMessageNotFound, turn.ModelMsgID)
	}
	final.Feedback = src.Messages[idx].Feedback
	src = model.ReplaceMessage(src, final)

	subjectID := ""
	if s.Identified() {
		subjectID = model.NormalizeID(s.GameName)
	}
	elsewhere := subjectID != "" && subjectID != turn.SourceID

	switch {
	case elsewhere && s.Unreleased:
		src = model.AppendMessages(src, systemMessage(turn, unreleasedText(s.GameName)))
		if subject, ok := out.Get(subjectID); ok {
			out.Conversations[subjectID] = model.ApplyContext(subject, model.ContextPatch{TrailerSeen: now})
		}
	case subjectID != "" && s.Unreleased:
		src = model.ApplyContext(src, model.ContextPatch{TrailerSeen: now})
	case elsewhere && !(turn.HasImages || s.HighConfidence):
		src = model.AppendMessages(src, systemMessage(turn, confirmText(s.GameName)))
	case elsewhere:
		res.Promoted = true
		res.TargetID = subjectID
	}

	if res.Promoted {
		moved := movedMessages(src, turn.UserMsgID, turn.ModelMsgID)
		src = model.RemoveMessages(src, turn.UserMsgID, turn.ModelMsgID)
		target, exists := out.Get(subjectID)
		if !exists {
			target = model.NewConversation(subjectID, s.GameName, now)
			res.Created = true
			out.Order = insertAfterDefault(out.Order, subjectID)
		}
		out.Conversations[subjectID] = model.AppendMessages(target, moved...)
		if out.ActiveID == turn.SourceID {
			out.ActiveID = subjectID
		}
	}
	out.Conversations[turn.SourceID] = model.Touch(src, now)

	target := out.Conversations[res.TargetID]
	// a subject that was named but not promoted must not leak into the source
	if !target.IsDefault() && (res.Promoted || !elsewhere) {
		target = applyDirectives(target, s, turn, now, &res)
	}
	out.Conversations[res.TargetID] = model.Touch(target, now)

	out.Order = model.SortOrder(out.Conversations, out.Order)
	return out, res, nil
}

// applyDirectives merges scalar context and insight directives into target
func applyDirectives(target model.Conversation, s directive.Summary, turn Turn, now time.Time, res *Outcome) model.Conversation {
	target = model.ApplyContext(target, model.ContextPatch{
		Progress:          s.Progress,
		Genre:             s.Genre,
		Inventory:         s.Inventory,
		Objective:         s.Objective,
		ObjectiveComplete: s.ObjectiveDone,
	})

	if target.Genre != "" && s.Identified() && !target.HasInsights() {
		target, res.PendingTabs = insight.Instantiate(target, target.Genre, turn.Pro, now)
	}

	if u := s.InsightUpdate; u != nil {
		var ok bool
		target, ok = insight.Update(target, u.ID, u.Content, now)
		if !ok && turn.Log != nil {
			turn.Log.Warn("Ignoring update for unknown insight %q in %s", u.ID, target.ID)
		}
	}

	if s.Modification != nil {
		mod := *s.Modification
		res.Pending = &mod
	}

	if s.DeleteInsight != "" {
		if next, err := insight.Delete(target, s.DeleteInsight); err == nil {
			target = next
			res.DeletedInsight = s.DeleteInsight
		} else if turn.Log != nil {
			turn.Log.Warn("Ignoring delete request: %v", err)
		}
	}
	return target
}

func movedMessages(conv model.Conversation, ids ...string) []model.ChatMessage {
	var out []model.ChatMessage
	for _, id := range ids {
		if idx := conv.MessageIndex(id); idx >= 0 {
			out = append(out, conv.Messages[idx])
		}
	}
	return out
}

func insertAfterDefault(order []string, id string) []string {
	out := make([]string, 0, len(order)+1)
	inserted := false
	for _, v := range order {
		if v == id {
			continue
		}
		out = append(out, v)
		if v == model.DefaultConversationID && !inserted {
			out = append(out, id)
			inserted = true
		}
	}
	if !inserted {
		out = append([]string{id}, out...)
	}
	return out
}

func systemMessage(turn Turn, text string) model.ChatMessage {
	return model.ChatMessage{
		ID:   turn.ModelMsgID + NoticeSuffix,
		Role: model.RoleModel,
		Text: text,
	}
}

func confirmText(game string) string {
	return fmt.Sprintf("This looks like it could be **%s**, but I'm not sure yet. Upload a screenshot or confirm the game and I'll open a dedicated chat for it.", game)
}

func unreleasedText(game string) string {
	return fmt.Sprintf("**%s** hasn't been released yet, so I'll keep our chat here. Ask me about trailers, announcements or what to expect.", game)
}
