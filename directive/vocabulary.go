// Package directive recognizes the bracketed tag language embedded in model
// output. One tokenizer drives both the streaming display filter (Clean) and
// the end-of-stream parser (Parse), so a tag hidden while it streams in is
// exactly a tag that gets parsed once it completes.
package directive

import "strings"

// Namespace is the optional prefix a tag name may carry, as in [OTAKON_GAME_ID: x]
const Namespace = "OTAKON_"

// Tag names of the directive vocabulary
const (
	TagGameID               = "GAME_ID"
	TagConfidence           = "CONFIDENCE"
	TagGameProgress         = "GAME_PROGRESS"
	TagGenre                = "GENRE"
	TagGameIsUnreleased     = "GAME_IS_UNRELEASED"
	TagTriumph              = "TRIUMPH"
	TagInventoryAnalysis    = "INVENTORY_ANALYSIS"
	TagSuggestions          = "SUGGESTIONS"
	TagInsightUpdate        = "INSIGHT_UPDATE"
	TagInsightModifyPending = "INSIGHT_MODIFY_PENDING"
	TagInsightDeleteRequest = "INSIGHT_DELETE_REQUEST"
	TagObjectiveSet         = "OBJECTIVE_SET"
	TagObjectiveComplete    = "OBJECTIVE_COMPLETE"
	TagHintStart            = "HINT_START"
	TagHintEnd              = "HINT_END"
)

// Family classifies how a tag's payload is delimited
type Family int

const (
	// FamilyScalar payloads run to the first closing bracket on the same line.
	FamilyScalar Family = iota
	// FamilyStructured payloads are a balanced JSON object or array.
	FamilyStructured
	// FamilyBare tags carry no payload: [HINT_START].
	FamilyBare
	// FamilyMarker covers the reserved internal markers (ID, TAG, META,
	// DEBUG, SYSTEM). They are stripped from display and never parsed.
	FamilyMarker
)

var vocabulary = map[string]Family{
	TagGameID:               FamilyScalar,
	TagConfidence:           FamilyScalar,
	TagGameProgress:         FamilyScalar,
	TagGenre:                FamilyScalar,
	TagGameIsUnreleased:     FamilyScalar,
	TagTriumph:              FamilyStructured,
	TagInventoryAnalysis:    FamilyStructured,
	TagSuggestions:          FamilyStructured,
	TagInsightUpdate:        FamilyStructured,
	TagInsightModifyPending: FamilyStructured,
	TagInsightDeleteRequest: FamilyStructured,
	TagObjectiveSet:         FamilyStructured,
	TagObjectiveComplete:    FamilyScalar,
	TagHintStart:            FamilyBare,
	TagHintEnd:              FamilyBare,
}

// markerFamilies are matched by name: exact, or followed by "_" and more.
// META also matches METADATA.
var markerFamilies = []string{"ID", "TAG", "META", "DEBUG", "SYSTEM"}

// lookup returns the family of a tag name
func lookup(name string) (Family, bool) {
	if f, ok := vocabulary[name]; ok {
		return f, true
	}
	for _, fam := range markerFamilies {
		if name == fam || strings.HasPrefix(name, fam+"_") {
			return FamilyMarker, true
		}
	}
	if strings.HasPrefix(name, "META") {
		return FamilyMarker, true
	}
	return 0, false
}

// couldBecome reports whether an unfinished name may still grow into a
// recognized tag once more text streams in
func couldBecome(partial string) bool {
	if strings.HasPrefix(Namespace, partial) {
		return true
	}
	partial = strings.TrimPrefix(partial, Namespace)
	if partial == "" {
		return true
	}
	if _, ok := lookup(partial); ok {
		return true
	}
	for name := range vocabulary {
		if strings.HasPrefix(name, partial) {
			return true
		}
	}
	for _, fam := range markerFamilies {
		if strings.HasPrefix(fam, partial) {
			return true
		}
	}
	return false
}
