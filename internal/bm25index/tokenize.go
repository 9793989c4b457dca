package bm25index

import (
	"regexp"
	"strings"
)

// tokenRe preserves identifier-like tokens ("vault_embed.py", "qdrant-client",
// "v1.2") instead of splitting on every punctuation character.
var tokenRe = regexp.MustCompile(`[a-zA-Z0-9_\-.]+`)

// stopwords is a representative English + French stopword set. It is not
// exhaustive — the goal is to drop the high-frequency function words that
// would otherwise dominate every document's term frequency, not to model a
// full stopword dictionary.
var stopwords = map[string]bool{
	// English
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "it": true, "this": true, "that": true,
	"as": true, "by": true, "from": true, "not": true, "so": true, "if": true,
	"we": true, "you": true, "i": true, "they": true, "he": true, "she": true,
	// French
	"le": true, "la": true, "les": true, "un": true, "une": true, "des": true,
	"de": true, "du": true, "et": true, "ou": true, "mais": true, "dans": true,
	"sur": true, "pour": true, "avec": true, "est": true, "sont": true,
	"etre": true, "ce": true, "cette": true, "pas": true, "qui": true,
	"que": true, "ne": true, "se": true, "il": true, "elle": true,
}

// Tokenize splits text on runs of [a-zA-Z0-9_\-.], lowercases, and drops
// stopwords and length-≤1 tokens (spec §4.3).
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) <= 1 {
			continue
		}
		if stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
