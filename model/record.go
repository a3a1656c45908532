package model

import (
	"sort"
	"time"
)

// RecordContext holds the per-thread game context stored next to the messages
type RecordContext struct {
	Progress                 *int       `json:"progress,omitempty"`
	Genre                    string     `json:"genre,omitempty"`
	Inventory                []string   `json:"inventory,omitempty"`
	ActiveObjective          *Objective `json:"activeObjective,omitempty"`
	LastTrailerTimestamp     int64      `json:"lastTrailerTimestamp,omitempty"` // unix millis
	LastInteractionTimestamp int64      `json:"lastInteractionTimestamp,omitempty"`
	IsPinned                 bool       `json:"isPinned"`
}

// Record is the persisted form of one conversation, shared by the remote
// store and the local cache. Insights are stored as an ordered array and
// keyed by id again on read.
type Record struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	Insights  []Insight     `json:"insights"`
	Context   RecordContext `json:"context"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Snapshot is the full local copy of the state
type Snapshot struct {
	Records  []Record `json:"records"`
	Order    []string `json:"order"`
	ActiveID string   `json:"activeId"`
}

// ToRecord converts a conversation into its persisted form
func ToRecord(conv Conversation) Record {
	conv = conv.Clone()
	return Record{
		ID:       conv.ID,
		Title:    conv.Title,
		Messages: conv.Messages,
		Insights: OrderedInsights(conv),
		Context: RecordContext{
			Progress:                 conv.Progress,
			Genre:                    conv.Genre,
			Inventory:                conv.Inventory,
			ActiveObjective:          conv.ActiveObjective,
			LastTrailerTimestamp:     millis(conv.LastTrailerTimestamp),
			LastInteractionTimestamp: millis(conv.LastInteractionTimestamp),
			IsPinned:                 conv.IsPinned,
		},
		CreatedAt: conv.CreatedAt,
	}
}

// FromRecord rebuilds a conversation from its persisted form
func FromRecord(rec Record) Conversation {
	conv := Conversation{
		ID:                       rec.ID,
		Title:                    rec.Title,
		Messages:                 append([]ChatMessage{}, rec.Messages...),
		Genre:                    rec.Context.Genre,
		Inventory:                rec.Context.Inventory,
		ActiveObjective:          rec.Context.ActiveObjective,
		IsPinned:                 rec.Context.IsPinned,
		CreatedAt:                rec.CreatedAt,
		LastInteractionTimestamp: fromMillis(rec.Context.LastInteractionTimestamp),
		LastTrailerTimestamp:     fromMillis(rec.Context.LastTrailerTimestamp),
	}
	if rec.Context.Progress != nil {
		p := ClampProgress(*rec.Context.Progress)
		conv.Progress = &p
	}
	if len(rec.Insights) > 0 {
		conv = WithInsights(conv, rec.Insights)
	}
	return conv
}

// WithInsights replaces the insights of conv with list, keeping list order
func WithInsights(conv Conversation, list []Insight) Conversation {
	out := conv.Clone()
	out.Insights = make(map[string]Insight, len(list))
	out.InsightsOrder = make([]string, 0, len(list))
	for _, ins := range list {
		if _, dup := out.Insights[ins.ID]; dup {
			continue
		}
		out.Insights[ins.ID] = ins
		out.InsightsOrder = append(out.InsightsOrder, ins.ID)
	}
	return out
}

// OrderedInsights lists the insights of conv in tab order. Insights missing
// from the order come last, sorted by id.
func OrderedInsights(conv Conversation) []Insight {
	if len(conv.Insights) == 0 {
		return nil
	}
	out := make([]Insight, 0, len(conv.Insights))
	seen := make(map[string]bool, len(conv.Insights))
	for _, id := range conv.InsightsOrder {
		if ins, ok := conv.Insights[id]; ok && !seen[id] {
			out = append(out, ins)
			seen[id] = true
		}
	}
	var rest []string
	for id := range conv.Insights {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, conv.Insights[id])
	}
	return out
}

// SnapshotOf captures a collection for the local cache
func SnapshotOf(c Collection) Snapshot {
	snap := Snapshot{
		Order:    append([]string{}, c.Order...),
		ActiveID: c.ActiveID,
	}
	for _, conv := range c.Sorted() {
		snap.Records = append(snap.Records, ToRecord(conv))
	}
	// threads missing from the order still get persisted
	inOrder := make(map[string]bool, len(c.Order))
	for _, id := range c.Order {
		inOrder[id] = true
	}
	var rest []string
	for id := range c.Conversations {
		if !inOrder[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		snap.Records = append(snap.Records, ToRecord(c.Conversations[id]))
	}
	return snap
}

// CollectionFromRecords rebuilds a collection; order and active id are
// optional hints and the default thread is synthesized when absent.
func CollectionFromRecords(records []Record, order []string, activeID string, now time.Time) Collection {
	c := Collection{
		Conversations: make(map[string]Conversation, len(records)),
		Order:         append([]string{}, order...),
		ActiveID:      activeID,
	}
	for _, rec := range records {
		c.Conversations[rec.ID] = FromRecord(rec)
	}
	return c.EnsureDefault(now)
}

// Collection rebuilds the collection stored in the snapshot
func (s Snapshot) Collection(now time.Time) Collection {
	return CollectionFromRecords(s.Records, s.Order, s.ActiveID, now)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
