// Package kaldi lowers element trees into weighted automaton graphs for
// a Kaldi-style decoding backend, tracking list dependencies so list
// mutation recompiles only the rules that reference it.
package kaldi

import (
	"fmt"
	"sort"
	"strings"
)

// Lexicon is the pronunciation vocabulary collaborator consulted for
// every literal word.
type Lexicon interface {
	// Contains reports whether the word has a pronunciation.
	Contains(word string) bool
	// Placeholder returns the word substituted for out-of-vocabulary
	// literals.
	Placeholder() string
	// Add registers a generated pronunciation for a word, returning its
	// phone sequence.
	Add(word string) ([]string, error)
}

// StaticLexicon is a fixed word set whose placeholder is its longest
// word, the word least likely to be recognized by accident.
type StaticLexicon struct {
	words       map[string]bool
	placeholder string
}

// NewStaticLexicon builds a lexicon over the given words, lowercased.
func NewStaticLexicon(words ...string) *StaticLexicon {
	l := &StaticLexicon{words: make(map[string]bool, len(words))}
	for _, w := range words {
		l.include(strings.ToLower(w))
	}
	return l
}

func (l *StaticLexicon) include(word string) {
	l.words[word] = true
	if len(word) > len(l.placeholder) {
		l.placeholder = word
	}
}

func (l *StaticLexicon) Contains(word string) bool { return l.words[strings.ToLower(word)] }

func (l *StaticLexicon) Placeholder() string { return l.placeholder }

// Add registers the word with a naive per-letter phone sequence, the
// stand-in for a real grapheme-to-phoneme pass.
func (l *StaticLexicon) Add(word string) ([]string, error) {
	word = strings.ToLower(word)
	if word == "" {
		return nil, fmt.Errorf("cannot add empty word to lexicon")
	}
	l.include(word)
	phones := make([]string, 0, len(word))
	for _, r := range word {
		phones = append(phones, string(r))
	}
	return phones, nil
}

// Words returns the lexicon contents in sorted order.
func (l *StaticLexicon) Words() []string {
	words := make([]string, 0, len(l.words))
	for w := range l.words {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Permissive returns a lexicon that contains every word, for backends
// with open vocabularies and for tests.
func Permissive() Lexicon { return permissiveLexicon{} }

type permissiveLexicon struct{}

func (permissiveLexicon) Contains(string) bool { return true }

func (permissiveLexicon) Placeholder() string { return "<unk>" }

func (permissiveLexicon) Add(string) ([]string, error) { return nil, nil }
