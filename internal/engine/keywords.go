package engine

import (
	"sort"
	"strings"
	"unicode"

	"github.com/scrypster/mnemosyne/pkg/types"
)

const (
	// minKeywordLength drops tokens too short to carry meaning ("go" is an
	// unfortunate casualty; compressed summaries survive it).
	minKeywordLength = 3

	// defaultTopKeywords is the number of terms kept per summary when the
	// caller passes topK <= 0.
	defaultTopKeywords = 20
)

// keywordStopWords are filtered out before term counting: auxiliaries,
// prepositions, pronouns, and question words.
var keywordStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"has": true, "have": true, "was": true, "were": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "must": true,
	"this": true, "that": true, "these": true, "those": true,
	"with": true, "from": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true,
	"between": true, "over": true, "under": true, "about": true,
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "which": true, "while": true,
	"she": true, "her": true, "him": true, "his": true, "its": true,
	"they": true, "them": true, "their": true, "our": true, "your": true,
	"there": true, "here": true, "then": true, "than": true, "also": true,
	"just": true, "very": true, "some": true, "any": true, "each": true,
	"more": true, "most": true, "other": true, "such": true, "only": true,
}

// ExtractKeywords computes term frequencies across the given texts and
// returns the topK most frequent terms, most frequent first. Ties break
// alphabetically so equal inputs always produce equal output.
func ExtractKeywords(texts []string, topK int) []types.Keyword {
	if topK <= 0 {
		topK = defaultTopKeywords
	}

	counts := make(map[string]int)
	for _, text := range texts {
		for _, token := range tokenize(text) {
			counts[token]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	keywords := make([]types.Keyword, 0, len(counts))
	for term, count := range counts {
		keywords = append(keywords, types.Keyword{Term: term, Count: count})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return keywords[i].Term < keywords[j].Term
	})

	if len(keywords) > topK {
		keywords = keywords[:topK]
	}
	return keywords
}

// tokenize lowercases the text, splits on anything that is not a letter or
// digit, and drops stop words and short fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len(f) < minKeywordLength || keywordStopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
