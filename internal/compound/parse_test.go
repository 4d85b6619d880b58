package compound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

// decode drives an element over plain word tokens until a candidate
// consumes all of them.
func decode(t *testing.T, e grammar.Element, words ...string) (*grammar.Node, bool) {
	t.Helper()
	tokens := make([]grammar.Token, len(words))
	for i, w := range words {
		tokens[i] = grammar.Token{Word: w}
	}
	s := grammar.NewState(tokens, nil)
	d := grammar.NewRule("", e).Decode(s)
	for d.Next() {
		if s.Finished() {
			return s.BuildParseTree(), true
		}
	}
	return nil, false
}

func TestParseCollapsesAdjacentWords(t *testing.T) {
	t.Parallel()

	e, err := Parse("open the file", nil)
	require.NoError(t, err)

	lit, ok := e.(*grammar.Literal)
	require.True(t, ok, "adjacent words fold into one literal, not a sequence")
	require.Equal(t, []string{"open", "the", "file"}, lit.Words())
}

func TestParseAlternation(t *testing.T) {
	t.Parallel()

	e, err := Parse("copy | paste it", nil)
	require.NoError(t, err)

	alt, ok := e.(*grammar.Alternative)
	require.True(t, ok)
	require.Len(t, alt.Children(), 2)
	require.Equal(t, []string{"copy"}, alt.Children()[0].(*grammar.Literal).Words())
	require.Equal(t, []string{"paste", "it"}, alt.Children()[1].(*grammar.Literal).Words())
}

func TestParseOptionalAndGroup(t *testing.T) {
	t.Parallel()

	e, err := Parse("open (file | folder) [now]", nil)
	require.NoError(t, err)

	seq, ok := e.(*grammar.Sequence)
	require.True(t, ok)
	require.Len(t, seq.Children(), 3)
	require.IsType(t, &grammar.Literal{}, seq.Children()[0])
	require.IsType(t, &grammar.Alternative{}, seq.Children()[1])
	require.IsType(t, &grammar.Optional{}, seq.Children()[2])

	_, ok = decode(t, e, "open", "folder")
	require.True(t, ok)
	_, ok = decode(t, e, "open", "file", "now")
	require.True(t, ok)
	_, ok = decode(t, e, "open", "now")
	require.False(t, ok)
}

func TestParseNestedOptionals(t *testing.T) {
	t.Parallel()

	e, err := Parse("[really [really]] fast", nil)
	require.NoError(t, err)

	for _, words := range [][]string{
		{"fast"},
		{"really", "fast"},
		{"really", "really", "fast"},
	} {
		_, ok := decode(t, e, words...)
		require.True(t, ok, "words %v", words)
	}
}

func TestParseResolvesReferences(t *testing.T) {
	t.Parallel()

	color := grammar.NewAlternative([]grammar.Element{
		grammar.NewLiteral("red"),
		grammar.NewLiteral("blue"),
	}, grammar.Named("color"))

	e, err := Parse("<color>", map[string]grammar.Element{"color": color})
	require.NoError(t, err)
	require.Same(t, grammar.Element(color), e, "a bare reference yields the bound element itself")

	e, err = Parse("paint <color>", map[string]grammar.Element{"color": color})
	require.NoError(t, err)
	root, ok := decode(t, e, "paint", "blue")
	require.True(t, ok)
	require.Equal(t, "blue", root.ChildByName("color", true).Value())
}

func TestParseUnknownReference(t *testing.T) {
	t.Parallel()

	_, err := Parse("paint <color>", nil)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Contains(t, perr.Error(), `unknown reference name "color"`)
	require.Contains(t, perr.Spec, "paint <color>")
}

func TestParseMalformedSpec(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"[unclosed", "(a | b", "stray >", "<>"} {
		_, err := Parse(spec, nil)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "spec %q must fail", spec)
	}
}

func TestParseEmptySpecMatchesNothing(t *testing.T) {
	t.Parallel()

	e, err := Parse("", nil)
	require.NoError(t, err)

	_, ok := decode(t, e)
	require.True(t, ok, "an empty spec matches the empty utterance")
	_, ok = decode(t, e, "word")
	require.False(t, ok)
}

func TestMustParsePanicsOnBadSpec(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { MustParse("fine", nil) })
	require.Panics(t, func() { MustParse("[broken", nil) })
}
