// Package engine provides recognition backends grammars load into. The
// text engine decodes typed utterances in place of live audio, which is
// enough to exercise every grammar, compile, and dispatch path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/kaldi"
)

// ErrMimicFailure reports that no loaded grammar matched an utterance.
var ErrMimicFailure = errors.New("no matching rule")

// WindowSource reports the current foreground window for context
// activation.
type WindowSource interface {
	Foreground(ctx context.Context) (grammar.Window, error)
}

// Text is a recognition engine fed typed words instead of audio. Grammars
// load into it exactly as into a live backend: exported rules compile to
// recognition graphs at load time, and list updates recompile their
// dependents.
type Text struct {
	windows  WindowSource
	compiler *kaldi.Compiler
	loaded   []*grammar.Grammar
	compiled map[*grammar.Grammar]*kaldi.Compiled
	log      *slog.Logger
}

// NewText builds a text engine. A nil source reports a zero foreground
// window; a nil logger discards.
func NewText(windows WindowSource, logger *slog.Logger) *Text {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Text{
		windows:  windows,
		compiler: kaldi.NewCompiler(kaldi.Permissive(), kaldi.Config{}, logger),
		compiled: make(map[*grammar.Grammar]*kaldi.Compiled),
		log:      logger,
	}
}

// LoadGrammar compiles the grammar's exported rules and registers it for
// recognition. A compile failure is fatal: the grammar is not loaded.
func (e *Text) LoadGrammar(g *grammar.Grammar) error {
	if _, ok := e.compiled[g]; ok {
		return fmt.Errorf("grammar %q is already loaded", g.Name())
	}
	art, err := e.compiler.Compile(g)
	if err != nil {
		return err
	}
	e.loaded = append(e.loaded, g)
	e.compiled[g] = art
	e.log.Debug("grammar loaded", "grammar", g.Name(), "rules", len(art.Rules()))
	return nil
}

// UnloadGrammar forgets the grammar and its compiled graphs.
func (e *Text) UnloadGrammar(g *grammar.Grammar) error {
	i := slices.Index(e.loaded, g)
	if i < 0 {
		return fmt.Errorf("grammar %q is not loaded here", g.Name())
	}
	e.loaded = slices.Delete(e.loaded, i, i+1)
	delete(e.compiled, g)
	e.log.Debug("grammar unloaded", "grammar", g.Name())
	return nil
}

// ActivateRule is a no-op: Mimic consults rule activation flags directly
// at decode time.
func (e *Text) ActivateRule(r *grammar.Rule, g *grammar.Grammar) error { return nil }

// DeactivateRule is a no-op, mirroring ActivateRule.
func (e *Text) DeactivateRule(r *grammar.Rule, g *grammar.Grammar) error { return nil }

// UpdateList recompiles the graphs of loaded rules depending on the list.
func (e *Text) UpdateList(l grammar.ListBase, g *grammar.Grammar) error {
	art, ok := e.compiled[g]
	if !ok {
		return fmt.Errorf("grammar %q is not loaded here", g.Name())
	}
	return e.compiler.UpdateList(art, l)
}

// Mimic simulates a recognition of the given words. Grammar and rule
// contexts are applied against the current foreground window first, then
// each loaded grammar's active exported rules are offered the utterance
// in load order. The first rule to decode it fully receives the parse
// tree; if none does, the error wraps ErrMimicFailure.
func (e *Text) Mimic(ctx context.Context, words ...string) error {
	if len(words) == 0 {
		return errors.New("mimic: empty utterance")
	}
	w, err := e.foreground(ctx)
	if err != nil {
		return fmt.Errorf("query foreground window: %w", err)
	}
	for _, g := range e.loaded {
		g.ProcessBegin(w)
	}
	tokens := Tokens(words...)
	for _, g := range e.loaded {
		if e.recognize(g, tokens) {
			return nil
		}
	}
	return fmt.Errorf("mimic %q: %w", strings.Join(words, " "), ErrMimicFailure)
}

func (e *Text) foreground(ctx context.Context) (grammar.Window, error) {
	if e.windows == nil {
		return grammar.Window{}, nil
	}
	return e.windows.Foreground(ctx)
}

// recognize offers the tokens to the grammar's active exported rules in
// declaration order and dispatches the first full decode.
func (e *Text) recognize(g *grammar.Grammar, tokens []grammar.Token) bool {
	for _, r := range g.Rules() {
		if !r.Active() || !r.Exported() {
			continue
		}
		s := grammar.NewState(tokens, nil)
		d := r.Decode(s)
		for d.Next() {
			if !s.Finished() {
				continue
			}
			root := s.BuildParseTree()
			d.Close()
			e.log.Debug("recognition", "grammar", g.Name(), "rule", r.Name())
			r.ProcessRecognition(root)
			return true
		}
	}
	return false
}

// Tokens converts typed words into recognition tokens. An all-uppercase
// word simulates free dictation: it is lowered and tagged with the
// dictation rule id, the way a live recognizer reports out-of-grammar
// speech. Everything else counts as a grammar word.
func Tokens(words ...string) []grammar.Token {
	tokens := make([]grammar.Token, 0, len(words))
	for _, word := range words {
		if isUpper(word) {
			tokens = append(tokens, grammar.Token{Word: strings.ToLower(word), RuleID: grammar.DictationRuleID})
			continue
		}
		tokens = append(tokens, grammar.Token{Word: word})
	}
	return tokens
}

// isUpper reports whether the word is cased and entirely upper.
// Caseless words like "123" are not dictation markers.
func isUpper(s string) bool {
	return s != "" && s == strings.ToUpper(s) && s != strings.ToLower(s)
}
