package directive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"game-companion/model"
)

// Warner receives parse warnings. *utils.Logger satisfies it.
type Warner interface {
	Warn(format string, v ...interface{})
}

// Options carries what the parser needs to know about the turn
type Options struct {
	HasImages bool
	Log       Warner
}

// Directive is one parsed instruction. The set of implementations is closed.
type Directive interface {
	Tag() string
	directive()
}

type (
	GameID     struct{ Name string }
	Genre      struct{ Name string }
	Confidence struct{ High bool }
	Progress   struct{ Percent int }
	Unreleased struct{}
	Triumph    struct{ model.Triumph }
	Inventory  struct{ Items []string }
	// Suggestions feed the task detector and the follow-up chips.
	Suggestions struct{ Items []string }
	// InsightUpdate appends Content to the insight with the given id.
	InsightUpdate struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	// InsightModifyPending waits for confirmation before it is applied.
	InsightModifyPending struct {
		model.PendingInsightModification
	}
	InsightDeleteRequest struct {
		ID string `json:"id"`
	}
	ObjectiveSet struct {
		Description string `json:"description"`
	}
	ObjectiveComplete struct{}
)

func (GameID) Tag() string               { return TagGameID }
func (Genre) Tag() string                { return TagGenre }
func (Confidence) Tag() string           { return TagConfidence }
func (Progress) Tag() string             { return TagGameProgress }
func (Unreleased) Tag() string           { return TagGameIsUnreleased }
func (Triumph) Tag() string              { return TagTriumph }
func (Inventory) Tag() string            { return TagInventoryAnalysis }
func (Suggestions) Tag() string          { return TagSuggestions }
func (InsightUpdate) Tag() string        { return TagInsightUpdate }
func (InsightModifyPending) Tag() string { return TagInsightModifyPending }
func (InsightDeleteRequest) Tag() string { return TagInsightDeleteRequest }
func (ObjectiveSet) Tag() string         { return TagObjectiveSet }
func (ObjectiveComplete) Tag() string    { return TagObjectiveComplete }

func (GameID) directive()               {}
func (Genre) directive()                {}
func (Confidence) directive()           {}
func (Progress) directive()             {}
func (Unreleased) directive()           {}
func (Triumph) directive()              {}
func (Inventory) directive()            {}
func (Suggestions) directive()          {}
func (InsightUpdate) directive()        {}
func (InsightModifyPending) directive() {}
func (InsightDeleteRequest) directive() {}
func (ObjectiveSet) directive()         {}
func (ObjectiveComplete) directive()    {}

type decoder func(payload string) (Directive, error)

// extraction order; Parse emits directives in this order
var decoders = []struct {
	tag    string
	decode decoder
}{
	{TagGameID, decodeGameID},
	{TagGenre, decodeGenre},
	{TagConfidence, decodeConfidence},
	{TagGameProgress, decodeProgress},
	{TagGameIsUnreleased, decodeFlag(Unreleased{})},
	{TagTriumph, decodeTriumph},
	{TagInventoryAnalysis, decodeInventory},
	{TagSuggestions, decodeSuggestions},
	{TagInsightUpdate, decodeInsightUpdate},
	{TagInsightModifyPending, decodeModifyPending},
	{TagInsightDeleteRequest, decodeDeleteRequest},
	{TagObjectiveSet, decodeObjectiveSet},
	{TagObjectiveComplete, decodeFlag(ObjectiveComplete{})},
}

// Parse extracts the directives of a complete response. Only the first
// complete occurrence of each tag counts. A payload that fails to decode is
// logged and skipped; it never stops the rest of the parse.
func Parse(raw string, opts Options) []Directive {
	first := make(map[string]Token)
	for _, tok := range Tokenize(raw) {
		if tok.Partial || tok.Family == FamilyMarker || tok.Family == FamilyBare {
			continue
		}
		if _, seen := first[tok.Name]; !seen {
			first[tok.Name] = tok
		}
	}

	var out []Directive
	var identified, high bool
	for _, d := range decoders {
		tok, ok := first[d.tag]
		if !ok {
			continue
		}
		dir, err := d.decode(tok.Payload)
		if err != nil {
			warn(opts.Log, "Dropping [%s] directive: %v (payload %q)", d.tag, err, tok.Payload)
			continue
		}
		switch v := dir.(type) {
		case GameID:
			identified = true
		case Confidence:
			high = v.High
		case Progress:
			if !high && !(identified && !opts.HasImages) {
				continue
			}
		}
		out = append(out, dir)
	}
	return out
}

func warn(log Warner, format string, v ...interface{}) {
	if log != nil {
		log.Warn(format, v...)
	}
}

func decodeGameID(payload string) (Directive, error) {
	name := strings.TrimSpace(payload)
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}
	return GameID{Name: name}, nil
}

func decodeGenre(payload string) (Directive, error) {
	name := strings.TrimSpace(payload)
	if name == "" {
		return nil, fmt.Errorf("empty genre")
	}
	return Genre{Name: name}, nil
}

func decodeConfidence(payload string) (Directive, error) {
	switch strings.TrimSpace(payload) {
	case "high":
		return Confidence{High: true}, nil
	case "low":
		return Confidence{High: false}, nil
	}
	return nil, fmt.Errorf("unknown confidence level")
}

func decodeProgress(payload string) (Directive, error) {
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(payload), "%")))
	if err != nil {
		return nil, fmt.Errorf("failed to parse progress: %w", err)
	}
	return Progress{Percent: n}, nil
}

func decodeFlag(d Directive) decoder {
	return func(payload string) (Directive, error) {
		if !strings.EqualFold(strings.TrimSpace(payload), "true") {
			return nil, fmt.Errorf("flag is not true")
		}
		return d, nil
	}
}

func decodeTriumph(payload string) (Directive, error) {
	var t model.Triumph
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("failed to decode triumph: %w", err)
	}
	return Triumph{t}, nil
}

func decodeInventory(payload string) (Directive, error) {
	var v struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode inventory: %w", err)
	}
	if v.Items == nil {
		return nil, fmt.Errorf("inventory has no items field")
	}
	return Inventory{Items: v.Items}, nil
}

func decodeSuggestions(payload string) (Directive, error) {
	var items []string
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}
	return Suggestions{Items: items}, nil
}

func decodeInsightUpdate(payload string) (Directive, error) {
	var v InsightUpdate
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode insight update: %w", err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("insight update without id")
	}
	return v, nil
}

func decodeModifyPending(payload string) (Directive, error) {
	var v model.PendingInsightModification
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode insight modification: %w", err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("insight modification without id")
	}
	if v.Type == "" {
		v.Type = model.ModificationModify
	}
	return InsightModifyPending{v}, nil
}

func decodeDeleteRequest(payload string) (Directive, error) {
	var v InsightDeleteRequest
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode insight delete request: %w", err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("insight delete request without id")
	}
	return v, nil
}

func decodeObjectiveSet(payload string) (Directive, error) {
	var v ObjectiveSet
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode objective: %w", err)
	}
	v.Description = strings.TrimSpace(v.Description)
	if v.Description == "" {
		return nil, fmt.Errorf("objective without description")
	}
	return v, nil
}
