// Package search provides the retrieval primitives behind the knowledge
// resolver: query tokenization for the title pass and deterministic cosine
// ranking over chunk embeddings for the semantic pass. It is intentionally
// small and dependency-free beyond the embedder contract:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with a small stop-word list
//   - Deterministic scoring and sorting (stable order for ties)
//   - Embedding generation behind a narrow Embedder interface so tests can
//     inject fixed vectors
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleStopwords are common words that carry no title signal. Tokens in this
// set never participate in the title pass.
var titleStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "what": {},
	"how": {}, "can": {}, "have": {}, "about": {}, "with": {}, "that": {},
	"this": {}, "are": {}, "does": {}, "please": {}, "want": {}, "need": {},
	"tell": {}, "know": {}, "much": {}, "any": {},
}

var lowerCaser = cases.Lower(language.Und)

// TitleTokens tokenizes a query into lowercase candidate title tokens:
// alphanumeric runs of at least 3 runes, minus the stop-list, in order of
// first appearance with duplicates removed. The ordering matters: the title
// pass takes the first token that yields any article match.
func TitleTokens(query string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range splitWords(query) {
		tok := lowerCaser.String(raw)
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, stop := titleStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// splitWords splits on any non-letter/digit rune.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
