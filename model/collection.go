package model

import (
	"sort"
	"time"
)

// Collection is the whole conversation state: every thread, the display
// order and the thread currently shown.
type Collection struct {
	Conversations map[string]Conversation `json:"conversations"`
	Order         []string                `json:"order"`
	ActiveID      string                  `json:"activeId"`
}

// NewCollection returns a collection holding only the default thread
func NewCollection(now time.Time) Collection {
	def := NewConversation(DefaultConversationID, DefaultConversationTitle, now)
	return Collection{
		Conversations: map[string]Conversation{DefaultConversationID: def},
		Order:         []string{DefaultConversationID},
		ActiveID:      DefaultConversationID,
	}
}

// Clone copies the map and the order slice. Conversations are values, so a
// caller that wants to change one must Clone it before storing it back.
func (c Collection) Clone() Collection {
	out := Collection{
		Conversations: make(map[string]Conversation, len(c.Conversations)),
		Order:         append([]string{}, c.Order...),
		ActiveID:      c.ActiveID,
	}
	for k, v := range c.Conversations {
		out.Conversations[k] = v
	}
	return out
}

// Len returns the number of threads
func (c Collection) Len() int {
	return len(c.Conversations)
}

// IsEmpty reports whether the collection holds nothing worth keeping: no
// threads at all, or only an empty default thread.
func (c Collection) IsEmpty() bool {
	if len(c.Conversations) == 0 {
		return true
	}
	if len(c.Conversations) > 1 {
		return false
	}
	def, ok := c.Conversations[DefaultConversationID]
	return ok && len(def.Messages) == 0
}

// Get returns a thread by id
func (c Collection) Get(id string) (Conversation, bool) {
	conv, ok := c.Conversations[id]
	return conv, ok
}

// Active returns the thread currently shown
func (c Collection) Active() (Conversation, bool) {
	return c.Get(c.ActiveID)
}

// Sorted returns the threads in display order
func (c Collection) Sorted() []Conversation {
	out := make([]Conversation, 0, len(c.Order))
	for _, id := range c.Order {
		if conv, ok := c.Conversations[id]; ok {
			out = append(out, conv)
		}
	}
	return out
}

// EnsureDefault adds the default thread if it is missing and makes sure every
// thread appears exactly once in the order.
func (c Collection) EnsureDefault(now time.Time) Collection {
	out := c.Clone()
	if out.Conversations == nil {
		out.Conversations = map[string]Conversation{}
	}
	if _, ok := out.Conversations[DefaultConversationID]; !ok {
		out.Conversations[DefaultConversationID] = NewConversation(DefaultConversationID, DefaultConversationTitle, now)
	}

	seen := make(map[string]bool, len(out.Order))
	order := make([]string, 0, len(out.Conversations))
	for _, id := range out.Order {
		if _, ok := out.Conversations[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	var missing []string
	for id := range out.Conversations {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	out.Order = SortOrder(out.Conversations, append(order, missing...))

	if _, ok := out.Conversations[out.ActiveID]; !ok {
		out.ActiveID = DefaultConversationID
	}
	return out
}

// SortOrder returns a sorted copy of order: the default thread first, pinned
// threads before unpinned ones, then most recent activity first. Ties keep
// their relative position.
func SortOrder(convs map[string]Conversation, order []string) []string {
	out := append([]string{}, order...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(convs[out[i]], convs[out[j]])
	})
	return out
}

func less(a, b Conversation) bool {
	if a.IsDefault() != b.IsDefault() {
		return a.IsDefault()
	}
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	return a.Activity().After(b.Activity())
}
