package grammar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLiteralSplitsWords(t *testing.T) {
	t.Parallel()

	lit := NewLiteral("  hello   world ")
	require.Equal(t, []string{"hello", "world"}, lit.Words())
	require.Nil(t, lit.Children())
}

func TestElementOptions(t *testing.T) {
	t.Parallel()

	e := NewLiteral("go", Named("verb"), WithDefault("stay"), WithWeight(2.5))
	require.Equal(t, "verb", e.Name())
	def, ok := e.Default()
	require.True(t, ok)
	require.Equal(t, "stay", def)
	require.Equal(t, 2.5, e.Weight())

	bare := NewLiteral("go")
	require.Empty(t, bare.Name())
	_, ok = bare.Default()
	require.False(t, ok)
	require.Equal(t, 1.0, bare.Weight())
}

func TestRepetitionBoundsValidation(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewRepetition(NewLiteral("x"), -1, 2, true) })
	require.Panics(t, func() { NewRepetition(NewLiteral("x"), 2, 1, true) })
	require.Panics(t, func() { NewRepetition(NewLiteral("x"), 0, 0, true) })

	r := NewRepetition(NewLiteral("x"), 0, 3, true)
	require.Equal(t, 0, r.Min())
	require.Equal(t, 3, r.Max())
	require.True(t, r.Optimize())
}

func TestDependenciesCollectsRulesAndListsOnce(t *testing.T) {
	t.Parallel()

	colors := NewList("colors", "red", "blue")
	shapes := NewDictList("shapes")
	require.NoError(t, shapes.Set("square", 4))

	inner := NewRule("inner", NewListRef(colors))
	root := NewSequence([]Element{
		NewRuleRef(inner),
		NewRuleRef(inner),
		NewListRef(colors),
		NewDictListRef(shapes),
	})

	rules, lists := Dependencies(root)
	require.Equal(t, []*Rule{inner}, rules)
	require.Len(t, lists, 2)
	require.Same(t, colors, lists[0])
	require.Same(t, shapes, lists[1])
}

func TestDependenciesWalksThroughRuleElements(t *testing.T) {
	t.Parallel()

	deep := NewList("deep")
	leaf := NewRule("leaf", NewListRef(deep))
	mid := NewRule("mid", NewOptional(NewRuleRef(leaf)))
	root := NewAlternative([]Element{NewRuleRef(mid), NewLiteral("stop")})

	rules, lists := Dependencies(root)
	require.Len(t, rules, 2)
	require.Same(t, mid, rules[0])
	require.Same(t, leaf, rules[1])
	require.Len(t, lists, 1)
	require.Same(t, deep, lists[0])
}

func TestDependenciesHandlesRecursiveRules(t *testing.T) {
	t.Parallel()

	self := NewRule("self", nil)
	self.element = NewOptional(NewRuleRef(self))

	rules, lists := Dependencies(self.element)
	require.Equal(t, []*Rule{self}, rules)
	require.Empty(t, lists)
}

func TestElementStrings(t *testing.T) {
	t.Parallel()

	require.Equal(t, `Literal("hello world")`, NewLiteral("hello world").String())
	require.Equal(t, `Literal("go", name="verb")`, NewLiteral("go", Named("verb")).String())
	require.Equal(t, "Sequence(2 children)", NewSequence([]Element{NewEmpty(), NewEmpty()}).String())
	require.Equal(t, "Repetition(min=1, max=3)", NewRepetition(NewLiteral("x"), 1, 3, true).String())
	require.Equal(t, "Dictation(cloud)", NewDictation(true).String())
}
