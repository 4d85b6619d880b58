package grammar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRuleGeneratesAnonymousNames(t *testing.T) {
	t.Parallel()

	a := NewRule("", NewLiteral("a"))
	b := NewRule("", NewLiteral("b"))
	require.True(t, strings.HasPrefix(a.Name(), "_anon_"))
	require.NotEqual(t, a.Name(), b.Name())
}

func TestProcessRecognitionDispatchesHandler(t *testing.T) {
	t.Parallel()

	var got any
	r := NewRule("color", NewAlternative([]Element{
		NewLiteral("red", WithValue("r")),
		NewLiteral("blue", WithValue("b")),
	}), Exported(), OnRecognition(func(root *Node) {
		got = root.Value()
	}))

	s := NewState(toks("blue"), nil)
	d := r.Decode(s)
	require.True(t, d.Next())
	require.True(t, s.Finished())

	r.ProcessRecognition(s.BuildParseTree())
	require.Equal(t, "b", got)

	unhandled := NewRule("silent", NewLiteral("hi"))
	require.NotPanics(t, func() { unhandled.ProcessRecognition(nil) })
}
