package compound

import (
	"fmt"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

// NewRule builds an exported rule whose root element is parsed from a
// compound spec. Extras supply the elements <name> references resolve to;
// each must carry a binding name.
func NewRule(name, spec string, extras []grammar.Element, opts ...grammar.RuleOption) (*grammar.Rule, error) {
	refs := make(map[string]grammar.Element, len(extras))
	for _, extra := range extras {
		if extra.Name() == "" {
			return nil, fmt.Errorf("compound rule %q: extra %s has no binding name", name, extra)
		}
		refs[extra.Name()] = extra
	}
	root, err := Parse(spec, refs)
	if err != nil {
		return nil, fmt.Errorf("compound rule %q: %w", name, err)
	}
	return grammar.NewRule(name, root, append([]grammar.RuleOption{grammar.Exported()}, opts...)...), nil
}

// ChoiceEntry pairs one spoken form, itself a compound spec, with the
// value extracted when it is recognized.
type ChoiceEntry struct {
	Spec  string
	Value any
}

// Choice builds a named alternative over spoken forms, one per entry in
// declaration order, each extracting its paired value.
func Choice(name string, entries []ChoiceEntry, opts ...grammar.Option) (*grammar.Alternative, error) {
	children := make([]grammar.Element, 0, len(entries))
	for _, entry := range entries {
		e, err := Parse(entry.Spec, nil)
		if err != nil {
			return nil, fmt.Errorf("choice %q: %w", name, err)
		}
		children = append(children, grammar.NewAlternative([]grammar.Element{e}, grammar.WithValue(entry.Value)))
	}
	return grammar.NewAlternative(children, append([]grammar.Option{grammar.Named(name)}, opts...)...), nil
}
