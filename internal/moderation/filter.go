// Package moderation implements the banned-word filter applied to user content and the sources
// its word list can be loaded from.
package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTerms is the built-in banned-word list used when no external policy is configured.
var DefaultTerms = []string{
	"fuck",
	"shit",
	"bitch",
	"bastard",
	"asshole",
	"ass",
	"dick",
	"cunt",
	"piss",
	"crap",
	"damn",
	"slut",
	"whore",
}

// Result reports the outcome of a profanity check.
type Result struct {
	HasProfanity bool     `json:"hasProfanity"`
	FoundWords   []string `json:"foundWords"`
}

type term struct {
	word    string
	pattern *regexp.Regexp
}

// Filter matches a fixed list of banned words on word boundaries, ignoring case. A Filter is
// immutable and safe for concurrent use.
type Filter struct {
	terms []term
}

// NewFilter compiles one word-boundary pattern per term. Blank and duplicate terms are skipped.
func NewFilter(words []string) (*Filter, error) {
	f := &Filter{}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile term %q: %w", w, err)
		}
		f.terms = append(f.terms, term{word: w, pattern: pattern})
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on error.
func MustFilter(words []string) *Filter {
	f, err := NewFilter(words)
	if err != nil {
		panic(err)
	}
	return f
}

// Len returns the number of terms in the filter.
func (f *Filter) Len() int {
	return len(f.terms)
}

// Terms returns the normalized term list in match order.
func (f *Filter) Terms() []string {
	out := make([]string, len(f.terms))
	for i, t := range f.terms {
		out[i] = t.word
	}
	return out
}

// ContainsProfanity reports which banned words occur in text, in list order.
func (f *Filter) ContainsProfanity(text string) Result {
	res := Result{FoundWords: []string{}}
	for _, t := range f.terms {
		if t.pattern.MatchString(text) {
			res.FoundWords = append(res.FoundWords, t.word)
		}
	}
	res.HasProfanity = len(res.FoundWords) > 0
	return res
}

// FilterProfanity replaces every banned word in text with asterisks of the same length.
func (f *Filter) FilterProfanity(text string) string {
	for _, t := range f.terms {
		text = t.pattern.ReplaceAllStringFunc(text, func(match string) string {
			return strings.Repeat("*", utf8.RuneCountInString(match))
		})
	}
	return text
}

// ProfanityError rejects content that contains banned words.
type ProfanityError struct {
	Words []string
}

func (e *ProfanityError) Error() string {
	return "content contains banned words: " + strings.Join(e.Words, ", ")
}

// Check returns a *ProfanityError when text contains banned words.
func (f *Filter) Check(text string) error {
	res := f.ContainsProfanity(text)
	if res.HasProfanity {
		return &ProfanityError{Words: res.FoundWords}
	}
	return nil
}
