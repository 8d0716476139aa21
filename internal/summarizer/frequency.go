// Package summarizer picks the most representative sentences of an answer.
package summarizer

import (
	"math"
	"sort"
	"strings"

	"rubberbot/internal/textutil"
)

const defaultMaxSentences = 1

// Frequency ranks sentences by normalized word frequency. Sentences that
// mention a focus term get a bonus per distinct term.
type Frequency struct {
	// FocusWeight is added to a sentence score for every focus term it contains.
	FocusWeight float64
}

// NewFrequency returns a summarizer with a unit focus bonus.
func NewFrequency() *Frequency {
	return &Frequency{FocusWeight: 1}
}

// Summarize returns up to maxSentences sentences of text in their original
// order. focus may be empty.
func (s *Frequency) Summarize(text, focus string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	sentences := textutil.Sentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	tokenized := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokenized[i] = textutil.Tokens(sent)
		for _, tok := range tokenized[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	focusTerms := textutil.TokenSet(focus)

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokenized {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// length normalization keeps long sentences from dominating
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		for term := range focusTerms {
			if contains(toks, term) {
				score += s.FocusWeight
			}
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func contains(toks []string, term string) bool {
	for _, t := range toks {
		if t == term {
			return true
		}
	}
	return false
}
