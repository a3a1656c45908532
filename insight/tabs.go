package insight

import (
	"fmt"
	"time"

	"game-companion/model"
)

// Get returns the tab with the given id
func Get(conv model.Conversation, id string) (model.Insight, error) {
	ins, ok := conv.Insights[id]
	if !ok {
		return model.Insight{}, fmt.Errorf("%w: %s in %s", ErrNotFound, id, conv.ID)
	}
	return ins, nil
}

// Put stores ins, appending its id to the tab order when it is new
func Put(conv model.Conversation, ins model.Insight) model.Conversation {
	out := conv.Clone()
	if out.Insights == nil {
		out.Insights = map[string]model.Insight{}
	}
	if _, exists := out.Insights[ins.ID]; !exists {
		out.InsightsOrder = append(out.InsightsOrder, ins.ID)
	}
	out.Insights[ins.ID] = ins
	return out
}

// Transition applies fn to one tab
func Transition(conv model.Conversation, id string, fn func(model.Insight) (model.Insight, error)) (model.Conversation, error) {
	ins, err := Get(conv, id)
	if err != nil {
		return conv, err
	}
	next, err := fn(ins)
	if err != nil {
		return conv, err
	}
	return Put(conv, next), nil
}

// Update applies an update directive to an existing tab. Unknown ids are
// ignored and reported through the bool.
func Update(conv model.Conversation, id, content string, now time.Time) (model.Conversation, bool) {
	ins, ok := conv.Insights[id]
	if !ok {
		return conv, false
	}
	return Put(conv, ApplyUpdate(ins, content, now)), true
}

// Create adds an empty placeholder tab derived from title
func Create(conv model.Conversation, title string, now time.Time) (model.Conversation, model.Insight, error) {
	id := model.NormalizeID(title)
	if id == "" {
		return conv, model.Insight{}, ErrEmptyTitle
	}
	if _, exists := conv.Insights[id]; exists {
		return conv, model.Insight{}, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	ins := model.Insight{
		ID:          id,
		Title:       title,
		Status:      model.StatusPlaceholder,
		LastUpdated: now,
	}
	return Put(conv, ins), ins, nil
}

// Overwrite replaces the title and content of a tab, as a user edit or a
// confirmed modification does. An empty title keeps the current one.
func Overwrite(conv model.Conversation, id, title, content string, now time.Time) (model.Conversation, error) {
	ins, err := Get(conv, id)
	if err != nil {
		return conv, err
	}
	if title != "" {
		ins.Title = title
	}
	ins.Content = content
	ins.Status = model.StatusLoaded
	ins.IsNew = true
	ins.LastUpdated = now
	return Put(conv, ins), nil
}

// Delete removes a tab and its position in the order
func Delete(conv model.Conversation, id string) (model.Conversation, error) {
	if _, err := Get(conv, id); err != nil {
		return conv, err
	}
	out := conv.Clone()
	delete(out.Insights, id)
	order := out.InsightsOrder[:0]
	for _, v := range out.InsightsOrder {
		if v != id {
			order = append(order, v)
		}
	}
	out.InsightsOrder = order
	return out, nil
}

// MarkRead clears the unread flag
func MarkRead(conv model.Conversation, id string) (model.Conversation, error) {
	return Transition(conv, id, func(ins model.Insight) (model.Insight, error) {
		ins.IsNew = false
		return ins, nil
	})
}

// SetFeedback records a vote on a tab
func SetFeedback(conv model.Conversation, id string, fb model.Feedback) (model.Conversation, error) {
	return Transition(conv, id, func(ins model.Insight) (model.Insight, error) {
		ins.Feedback = fb
		return ins, nil
	})
}

// Reorder puts the listed tabs first, in the given order. Unknown ids are
// skipped and tabs left out keep their relative order after the listed ones.
func Reorder(conv model.Conversation, ids []string) model.Conversation {
	out := conv.Clone()
	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(out.InsightsOrder))
	for _, id := range ids {
		if _, ok := out.Insights[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	for _, id := range out.InsightsOrder {
		if !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	out.InsightsOrder = order
	return out
}

// ApplyModification carries out a confirmed pending modification
func ApplyModification(conv model.Conversation, mod model.PendingInsightModification, now time.Time) (model.Conversation, error) {
	switch mod.Type {
	case model.ModificationRemove:
		return Delete(conv, mod.ID)
	case model.ModificationAdd:
		title := mod.Title
		if title == "" {
			title = mod.ID
		}
		id := model.NormalizeID(title)
		if _, exists := conv.Insights[id]; !exists {
			var err error
			conv, _, err = Create(conv, title, now)
			if err != nil {
				return conv, err
			}
		}
		return Overwrite(conv, id, title, mod.Content, now)
	case model.ModificationModify, "":
		return Overwrite(conv, mod.ID, mod.Title, mod.Content, now)
	default:
		return conv, fmt.Errorf("unknown modification type %q", mod.Type)
	}
}
