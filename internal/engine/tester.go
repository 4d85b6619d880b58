package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

// Tester wraps a bare element as the sole exported rule of a grammar on a
// private text engine, so element matching and value extraction can be
// exercised with typed words.
type Tester struct {
	engine  *Text
	grammar *grammar.Grammar
	value   any
}

// NewTester loads the element into a fresh private engine. Compile
// problems in the element surface here, not at recognition time.
func NewTester(e grammar.Element, logger *slog.Logger) (*Tester, error) {
	t := &Tester{engine: NewText(nil, logger)}
	rule := grammar.NewRule("_tester", e,
		grammar.Exported(),
		grammar.OnRecognition(func(root *grammar.Node) { t.value = root.Value() }),
	)
	t.grammar = grammar.NewGrammar("_tester", logger)
	if err := t.grammar.AddRule(rule); err != nil {
		return nil, err
	}
	if err := t.grammar.Load(t.engine); err != nil {
		return nil, fmt.Errorf("load element under test: %w", err)
	}
	return t, nil
}

// Recognize feeds one utterance to the element and returns its extracted
// value. A decode failure reports ErrMimicFailure.
func (t *Tester) Recognize(words ...string) (any, error) {
	t.value = nil
	if err := t.engine.Mimic(context.Background(), words...); err != nil {
		return nil, err
	}
	return t.value, nil
}
