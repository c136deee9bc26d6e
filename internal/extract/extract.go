// Package extract pulls candidate entity terms out of answer text for
// graph construction. The default extractor is a deterministic token
// heuristic: no network, no model calls, so graph rebuilds stay cheap and
// repeatable.
package extract

import (
	"strings"
	"unicode"
)

// Entity is one extracted term with a coarse type tag.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Entity type tags produced by the heuristic extractor.
const (
	TypeTerm   = "term"
	TypeNumber = "number"
)

// Func extracts entities from text. Implementations may fail per call;
// graph construction treats a failure as "no entities for this record".
type Func func(text string) ([]Entity, error)

// stopwords holds common English function words that carry no entity value.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "their": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "were": {}, "which": {},
	"with": {}, "what": {}, "when": {}, "where": {}, "who": {}, "why": {},
	"how": {}, "does": {}, "do": {}, "did": {}, "can": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "not": {}, "also": {}, "such": {},
	"between": {}, "about": {}, "into": {}, "than": {}, "then": {}, "more": {},
	"most": {}, "other": {}, "some": {}, "used": {}, "using": {}, "called": {},
}

// Heuristic returns a Func that emits at most max entities per text;
// max <= 0 means no cap. It never fails.
func Heuristic(max int) Func {
	return func(text string) ([]Entity, error) {
		return Entities(text, max), nil
	}
}

// Entities returns the distinct candidate terms in text, lowercased, in
// first-appearance order. A term qualifies if it is alphanumeric, at least
// three runes long, and not a stopword.
func Entities(text string, max int) []Entity {
	var (
		out  []Entity
		seen = map[string]struct{}{}
	)

	for _, raw := range strings.Fields(text) {
		term := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if !qualifies(term) {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, Entity{Text: term, Type: classify(term)})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func qualifies(term string) bool {
	if len([]rune(term)) < 3 {
		return false
	}
	if _, ok := stopwords[term]; ok {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func classify(term string) string {
	for _, r := range term {
		if !unicode.IsNumber(r) {
			return TypeTerm
		}
	}
	return TypeNumber
}
