package model

import "time"

// ContextPatch carries the per-thread fields a model turn may change. Every
// field documents its merge rule; a nil or zero field is ignored.
type ContextPatch struct {
	// Progress replaces the stored value, clamped to [0,100].
	Progress *int
	// Genre replaces the stored value when non-empty.
	Genre string
	// Inventory replaces the whole snapshot when non-nil.
	Inventory []string
	// Objective replaces the active objective and resets its completion.
	Objective *string
	// ObjectiveComplete marks the active objective done; ignored when there is none.
	ObjectiveComplete bool
	// TrailerSeen replaces LastTrailerTimestamp when non-zero.
	TrailerSeen time.Time
}

// ApplyContext returns conv with patch merged in
func ApplyContext(conv Conversation, patch ContextPatch) Conversation {
	out := conv.Clone()
	if patch.Progress != nil {
		p := ClampProgress(*patch.Progress)
		out.Progress = &p
	}
	if patch.Genre != "" {
		out.Genre = patch.Genre
	}
	if patch.Inventory != nil {
		out.Inventory = append([]string{}, patch.Inventory...)
	}
	if patch.Objective != nil {
		out.ActiveObjective = &Objective{Description: *patch.Objective}
	}
	if patch.ObjectiveComplete && out.ActiveObjective != nil {
		out.ActiveObjective.IsCompleted = true
	}
	if !patch.TrailerSeen.IsZero() {
		out.LastTrailerTimestamp = patch.TrailerSeen
	}
	return out
}

// ClampProgress bounds a progress percentage to [0,100]
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// AppendMessages appends messages at the end of the thread
func AppendMessages(conv Conversation, msgs ...ChatMessage) Conversation {
	out := conv.Clone()
	out.Messages = append(out.Messages, msgs...)
	return out
}

// ReplaceMessage swaps the message with the same id; unknown ids are ignored
func ReplaceMessage(conv Conversation, msg ChatMessage) Conversation {
	idx := conv.MessageIndex(msg.ID)
	if idx < 0 {
		return conv
	}
	out := conv.Clone()
	out.Messages[idx] = msg
	return out
}

// RemoveMessages drops the messages with the given ids
func RemoveMessages(conv Conversation, ids ...string) Conversation {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := conv.Clone()
	kept := out.Messages[:0]
	for _, m := range out.Messages {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	out.Messages = kept
	return out
}

// Touch records activity on the thread
func Touch(conv Conversation, now time.Time) Conversation {
	out := conv.Clone()
	out.LastInteractionTimestamp = now
	return out
}
