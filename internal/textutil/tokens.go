// Package textutil holds the tokenizer and sentence splitter shared by the
// sparse embedder, the summarizer and the terminal client.
package textutil

import (
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	stopwords  = buildStopwords()
)

// Words returns the lower-cased word tokens of text, stop words included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Tokens returns the lower-cased word tokens of text with stop words removed.
func Tokens(text string) []string {
	raw := Words(text)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TokenSet returns the distinct stop-word-filtered tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokens(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// IsStopword reports whether tok is an English stop word.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Sentences splits text into trimmed sentences. Text without terminal
// punctuation is returned as a single sentence.
func Sentences(text string) []string {
	found := sentenceRe.FindAllString(text, -1)
	if len(found) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	out := make([]string, 0, len(found))
	for _, s := range found {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "what's", "what’s", "which", "who", "whom", "whose", "when", "where", "why", "how", "do", "does", "did", "doing", "i", "me", "my", "we", "our", "you", "your", "he", "she", "they", "them", "their", "its", "there", "here", "has", "have", "had", "not", "no", "any", "all", "some", "each", "also", "could", "would", "may", "might", "must", "shall", "am", "there's", "it's",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
