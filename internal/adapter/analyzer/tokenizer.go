package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase terms with stopword removal, used by
// the lexical index, and estimates LLM token counts for budget accounting.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize splits text into index terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate LLM token count for budget estimation.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	// Rough estimate: average word is about 1.3 subword tokens.
	return int(float64(len(words)) * 1.3)
}

// splitWords splits text into words using unicode word boundaries.
// CJK and Hangul runes count as individual words since they carry meaning
// without whitespace separation.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana):
			flush()
			words = append(words, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return words
}

func defaultStopwords() map[string]struct{} {
	list := []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
		"if", "in", "into", "is", "it", "its", "no", "not", "of", "on",
		"or", "such", "that", "the", "their", "then", "there", "these",
		"they", "this", "to", "was", "were", "will", "with", "what",
		"which", "who", "how", "when", "where", "do", "does", "did",
		"have", "has", "had", "from", "about",
	}
	set := make(map[string]struct{}, len(list))
	for _, w := range list {
		set[w] = struct{}{}
	}
	return set
}
