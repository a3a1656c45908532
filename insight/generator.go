package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"

	"game-companion/llm"
	"game-companion/model"
	"game-companion/utils"
)

const defaultCacheSize = 64

// ErrNoContent is returned when a batch response holds none of the tabs
var ErrNoContent = errors.New("batch response holds no insight content")

// Generated is the content produced for one tab
type Generated struct {
	Title   string
	Content string
}

// Generator fills freshly instantiated tabs with one batched call keyed on
// (subject, genre, progress). Results are cached per key.
type Generator struct {
	provider llm.Provider
	cache    *lru.Cache[string, map[string]Generated]
	logger   *utils.Logger
}

// NewGenerator creates a generator; size <= 0 uses the default cache size
func NewGenerator(provider llm.Provider, size int, logger *utils.Logger) (*Generator, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, map[string]Generated](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create insight cache: %w", err)
	}
	return &Generator{provider: provider, cache: cache, logger: logger}, nil
}

func cacheKey(subject, genre string, progress int) string {
	return fmt.Sprintf("%s|%s|%d", model.NormalizeID(subject), strings.ToLower(genre), progress)
}

// Generate produces content for tabs. Tabs missing from the response are
// absent from the returned map.
func (g *Generator) Generate(ctx context.Context, subject, genre string, progress int, tabs []Tab) (map[string]Generated, error) {
	if len(tabs) == 0 {
		return map[string]Generated{}, nil
	}
	key := cacheKey(subject, genre, progress)
	if cached, ok := g.cache.Get(key); ok && covers(cached, tabs) {
		g.logger.Debug("Serving cached insights for %s (%d%%)", subject, progress)
		return cached, nil
	}

	raw, err := g.provider.Chat(ctx, batchPrompt(subject, genre, progress, tabs))
	if err != nil {
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}

	out, err := parseBatch(raw, tabs)
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, out)
	return out, nil
}

func covers(cached map[string]Generated, tabs []Tab) bool {
	for _, tab := range tabs {
		if _, ok := cached[tab.ID]; !ok {
			return false
		}
	}
	return true
}

func batchPrompt(subject, genre string, progress int, tabs []Tab) []llm.Message {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Game: %s\nGenre: %s\nEstimated progress: %d%%\n\n", subject, genre, progress))
	sb.WriteString("Write the content of each insight tab below. Avoid spoilers beyond the current progress.\n")
	sb.WriteString("Answer with a single JSON object only. Each key is a tab id and each value is {\"title\": string, \"content\": markdown string}.\n\n")
	for _, tab := range tabs {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", tab.ID, tab.Title, tab.Instruction))
	}
	return []llm.Message{
		{Role: "system", Content: "You are a spoiler-free gaming companion that writes concise, well structured markdown."},
		{Role: "user", Content: sb.String()},
	}
}

// parseBatch reads the model's JSON answer, repairing it when the model
// wrapped it in fences or left it malformed
func parseBatch(raw string, tabs []Tab) (map[string]Generated, error) {
	body := stripFences(raw)
	if !gjson.Valid(body) {
		repaired, err := jsonrepair.JSONRepair(body)
		if err != nil {
			return nil, fmt.Errorf("failed to repair insight JSON: %w", err)
		}
		body = repaired
	}

	doc := gjson.Parse(body)
	out := make(map[string]Generated, len(tabs))
	for _, tab := range tabs {
		entry := doc.Get(tab.ID)
		if !entry.Exists() {
			continue
		}
		gen := Generated{Title: tab.Title}
		if entry.IsObject() {
			gen.Content = strings.TrimSpace(entry.Get("content").String())
			if title := strings.TrimSpace(entry.Get("title").String()); title != "" {
				gen.Title = title
			}
		} else {
			gen.Content = strings.TrimSpace(entry.String())
		}
		if gen.Content != "" {
			out[tab.ID] = gen
		}
	}
	if len(out) == 0 {
		return nil, ErrNoContent
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// FillBatch applies a batch result to the tabs that are still loading. Tabs
// present in results become loaded, the rest move to error. Tabs the user
// touched meanwhile (no longer loading) are left alone.
func FillBatch(conv model.Conversation, tabs []Tab, results map[string]Generated, now time.Time) model.Conversation {
	out := conv
	for _, tab := range tabs {
		ins, ok := out.Insights[tab.ID]
		if !ok || ins.Status != model.StatusLoading {
			continue
		}
		gen, ok := results[tab.ID]
		if !ok {
			out = Put(out, Fail(ins, fmt.Sprintf("Failed to generate %s. Request it again to retry.", tab.Title), now))
			continue
		}
		filled, err := Fill(ins, gen.Content, now)
		if err != nil {
			continue
		}
		out = Put(out, filled)
	}
	return out
}
