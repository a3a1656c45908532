package chat

import (
	"fmt"
	"time"

	"game-companion/model"
)

const (
	CancelledText = "*Request cancelled by user.*"
	errorPrefix   = "Error: "

	// NoticeSuffix marks the ID of a reducer notice that follows a reply
	NoticeSuffix = "-notice"
)

// Modify applies fn to one thread and stores the result
func Modify(c model.Collection, id string, fn func(model.Conversation) (model.Conversation, error)) (model.Collection, error) {
	conv, ok := c.Get(id)
	if !ok {
		return c, notFound(id)
	}
	next, err := fn(conv)
	if err != nil {
		return c, err
	}
	out := c.Clone()
	out.Conversations[id] = next
	out.Order = model.SortOrder(out.Conversations, out.Order)
	return out, nil
}

// Locate returns the thread holding a message
func Locate(c model.Collection, msgID string) (string, int, bool) {
	for _, id := range c.Order {
		if idx := c.Conversations[id].MessageIndex(msgID); idx >= 0 {
			return id, idx, true
		}
	}
	return "", -1, false
}

func setText(c model.Collection, msgID, text string) (model.Collection, error) {
	convID, idx, ok := Locate(c, msgID)
	if !ok {
		return c, fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	return Modify(c, convID, func(conv model.Conversation) (model.Conversation, error) {
		msg := conv.Messages[idx]
		msg.Text = text
		return model.ReplaceMessage(conv, msg), nil
	})
}

// FailMessage replaces a placeholder with the error text
func FailMessage(c model.Collection, msgID string, err error) (model.Collection, error) {
	return setText(c, msgID, errorPrefix+err.Error())
}

// CancelMessage marks a placeholder as cancelled by the user
func CancelMessage(c model.Collection, msgID string) (model.Collection, error) {
	return setText(c, msgID, CancelledText)
}

// SetMessageText overwrites the text of a message, used while streaming
func SetMessageText(c model.Collection, msgID, text string) (model.Collection, error) {
	return setText(c, msgID, text)
}

// AddSystemMessage appends a model-authored notice to a thread
func AddSystemMessage(c model.Collection, convID string, msg model.ChatMessage, now time.Time) (model.Collection, error) {
	msg.Role = model.RoleModel
	return Modify(c, convID, func(conv model.Conversation) (model.Conversation, error) {
		return model.Touch(model.AppendMessages(conv, msg), now), nil
	})
}

// SetFeedback records a vote on a message
func SetFeedback(c model.Collection, msgID string, fb model.Feedback) (model.Collection, error) {
	convID, idx, ok := Locate(c, msgID)
	if !ok {
		return c, fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	return Modify(c, convID, func(conv model.Conversation) (model.Conversation, error) {
		msg := conv.Messages[idx]
		msg.Feedback = fb
		return model.ReplaceMessage(conv, msg), nil
	})
}

// Retract removes a model response and the user message that prompted it,
// returning that user message so it can be sent again.
func Retract(c model.Collection, modelMsgID string) (model.Collection, string, model.ChatMessage, error) {
	convID, idx, ok := Locate(c, modelMsgID)
	if !ok {
		return c, "", model.ChatMessage{}, fmt.Errorf("%w: %s", ErrMessageNotFound, modelMsgID)
	}
	conv := c.Conversations[convID]
	ids := []string{modelMsgID}
	var user model.ChatMessage
	for i := idx - 1; i >= 0; i-- {
		if conv.Messages[i].Role == model.RoleUser {
			user = conv.Messages[i]
			ids = append(ids, user.ID)
			break
		}
	}
	if user.ID == "" {
		return c, "", model.ChatMessage{}, fmt.Errorf("%w: no prompt before %s", ErrMessageNotFound, modelMsgID)
	}
	out, err := Modify(c, convID, func(conv model.Conversation) (model.Conversation, error) {
		return model.RemoveMessages(conv, ids...), nil
	})
	return out, convID, user, err
}

// Pin pins or unpins a thread
func Pin(c model.Collection, id string, pinned bool) (model.Collection, error) {
	if id == model.DefaultConversationID {
		return c, ErrDefaultThread
	}
	return Modify(c, id, func(conv model.Conversation) (model.Conversation, error) {
		out := conv.Clone()
		out.IsPinned = pinned
		return out, nil
	})
}

// Delete removes a thread; the default thread cannot be removed
func Delete(c model.Collection, id string) (model.Collection, error) {
	if id == model.DefaultConversationID {
		return c, ErrDefaultThread
	}
	if _, ok := c.Get(id); !ok {
		return c, notFound(id)
	}
	out := c.Clone()
	delete(out.Conversations, id)
	order := out.Order[:0]
	for _, v := range out.Order {
		if v != id {
			order = append(order, v)
		}
	}
	out.Order = order
	if out.ActiveID == id {
		out.ActiveID = model.DefaultConversationID
	}
	return out, nil
}

// Switch makes a thread the active one
func Switch(c model.Collection, id string) (model.Collection, error) {
	if _, ok := c.Get(id); !ok {
		return c, notFound(id)
	}
	out := c.Clone()
	out.ActiveID = id
	return out, nil
}

// Reorder applies a user-chosen order. Unknown ids are dropped and missing
// ones keep their relative place at the end; the default-first, pinned-next,
// most-recent ordering still wins over the requested one.
func Reorder(c model.Collection, ids []string) model.Collection {
	out := c.Clone()
	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(c.Order))
	for _, id := range ids {
		if _, ok := c.Conversations[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	for _, id := range c.Order {
		if !seen[id] {
			order = append(order, id)
		}
	}
	out.Order = model.SortOrder(out.Conversations, order)
	return out
}

// Reset drops every thread and starts over with an empty default thread
func Reset(now time.Time) model.Collection {
	return model.NewCollection(now)
}

// Restore validates a loaded collection before it replaces the current one
func Restore(c model.Collection, now time.Time) (model.Collection, error) {
	if _, ok := c.Get(model.DefaultConversationID); !ok {
		return c, ErrMissingDefault
	}
	return c.EnsureDefault(now), nil
}
