// Package textproc prepares message text and search queries for the
// stemmed full-text index. Stemming maps inflected forms to a common
// stem, so "running" in a query matches "run", "runner", and "runs" in
// the corpus.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"

	"github.com/wesm/chatvault/internal/textutil"
)

// Common English stop words that add noise rather than signal when
// ranking keyword matches.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "you": true, "your": true, "i": true, "me": true,
	"my": true, "we": true, "our": true, "they": true, "them": true,
	"their": true, "this": true, "these": true, "those": true,
	"what": true, "which": true, "who": true, "whom": true,
	"can": true, "could": true, "do": true, "does": true, "did": true,
	"have": true, "had": true, "having": true, "would": true,
	"should": true, "may": true, "might": true, "must": true,
	"shall": true, "am": true, "been": true, "being": true,
	"so": true, "but": true, "if": true, "then": true, "than": true,
	"just": true, "very": true, "too": true, "also": true,
	"only": true, "now": true, "here": true, "there": true,
}

// Tokens within words keep apostrophes so contractions survive as one
// token.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+(?:'[a-z]+)?`)

// Tokenize lowercases text, strips diacritics, and splits it into word
// tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	folded := textutil.FoldDiacritics(strings.ToLower(text))
	return tokenPattern.FindAllString(folded, -1)
}

// RemoveStopWords filters common English stop words from tokens.
func RemoveStopWords(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

// Stem reduces a lowercase word to its English stem.
func Stem(word string) string {
	if word == "" {
		return word
	}
	return english.Stem(word, true)
}

// StemForIndex tokenizes and stems text for the stemmed index column.
// Stop words are kept: the stemmed table relies on BM25 to discount
// them, and dropping them would break quoted-phrase searches.
func StemForIndex(text string) string {
	tokens := Tokenize(text)
	for i, t := range tokens {
		tokens[i] = Stem(t)
	}
	return strings.Join(tokens, " ")
}

// StemForIndexFiltered is StemForIndex with stop words removed before
// stemming. Indexes built this way are smaller, but quoted-phrase
// searches against the stemmed table lose their stop words.
func StemForIndexFiltered(text string) string {
	tokens := RemoveStopWords(Tokenize(text))
	for i, t := range tokens {
		tokens[i] = Stem(t)
	}
	return strings.Join(tokens, " ")
}

// StemQuery rewrites a search query for the stemmed index. FTS5
// operators (AND, OR, NOT, NEAR) pass through unchanged, quoted phrases
// are stemmed word by word but stay phrases, and everything else is
// stemmed in place.
func StemQuery(query string) string {
	if query == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(query)
	i := 0
	for i < len(runes) {
		r := runes[i]

		if r == '"' {
			end := indexRune(runes, i+1, '"')
			var phrase string
			if end == -1 {
				phrase = string(runes[i+1:])
				i = len(runes)
			} else {
				phrase = string(runes[i+1 : end])
				i = end + 1
			}
			b.WriteByte('"')
			b.WriteString(StemForIndex(phrase))
			b.WriteByte('"')
			continue
		}

		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '\'') {
				i++
			}
			word := string(runes[start:i])
			if isOperator(word) {
				b.WriteString(word)
			} else {
				b.WriteString(Stem(textutil.FoldDiacritics(strings.ToLower(word))))
			}
			continue
		}

		b.WriteRune(r)
		i++
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isOperator(word string) bool {
	switch word {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	return false
}

func indexRune(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}
