// Package compound parses the textual spec mini-language into element
// trees: whitespace-separated literal words, <name> references resolved
// against caller-supplied bindings, [...] optionals, (...) groups, and
// |-separated alternatives.
package compound

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

var specLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `[^\s\[\]<>|()]+`},
	{Name: "Punct", Pattern: `[\[\]<>|()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var specParser = participle.MustBuild[specAlternative](
	participle.Lexer(specLexer),
	participle.Elide("Whitespace"),
)

type specAlternative struct {
	Sequences []*specSequence `@@ ( "|" @@ )*`
}

type specSequence struct {
	Singles []*specSingle `@@*`
}

type specSingle struct {
	Words     []string         `  @Word+`
	Reference string           `| "<" @Word ">"`
	Optional  *specAlternative `| "[" @@ "]"`
	Group     *specAlternative `| "(" @@ ")"`
}

// ParseError reports a spec string that could not be turned into an
// element tree, naming the offending token or reference.
type ParseError struct {
	Spec string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse spec %q: %v", e.Spec, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse builds the element tree for a spec string, resolving <name>
// references against refs. Malformed specs and unknown references fail
// with a *ParseError.
func Parse(spec string, refs map[string]grammar.Element) (grammar.Element, error) {
	ast, err := specParser.ParseString("", spec)
	if err != nil {
		return nil, &ParseError{Spec: spec, Err: err}
	}
	e, err := ast.element(refs)
	if err != nil {
		return nil, &ParseError{Spec: spec, Err: err}
	}
	return e, nil
}

// MustParse is Parse for specs known to be valid; it panics on error.
func MustParse(spec string, refs map[string]grammar.Element) grammar.Element {
	e, err := Parse(spec, refs)
	if err != nil {
		panic(err)
	}
	return e
}

// element collapses single-branch alternatives away, matching the
// original language's inlining of trivial nodes.
func (a *specAlternative) element(refs map[string]grammar.Element) (grammar.Element, error) {
	children := make([]grammar.Element, 0, len(a.Sequences))
	for _, seq := range a.Sequences {
		child, err := seq.element(refs)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return grammar.NewAlternative(children), nil
}

func (s *specSequence) element(refs map[string]grammar.Element) (grammar.Element, error) {
	children := make([]grammar.Element, 0, len(s.Singles))
	for _, single := range s.Singles {
		child, err := single.element(refs)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return grammar.NewSequence(children), nil
}

func (s *specSingle) element(refs map[string]grammar.Element) (grammar.Element, error) {
	switch {
	case len(s.Words) > 0:
		return grammar.NewLiteral(strings.Join(s.Words, " ")), nil
	case s.Reference != "":
		e, ok := refs[s.Reference]
		if !ok {
			return nil, fmt.Errorf("unknown reference name %q", s.Reference)
		}
		return e, nil
	case s.Optional != nil:
		inner, err := s.Optional.element(refs)
		if err != nil {
			return nil, err
		}
		return grammar.NewOptional(inner), nil
	default:
		return s.Group.element(refs)
	}
}
