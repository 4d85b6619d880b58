package kaldi

import (
	"bytes"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/wfst"
)

// compileElement compiles a single exported rule wrapping e and returns
// its compiled form.
func compileElement(t *testing.T, lex Lexicon, cfg Config, e grammar.Element) *CompiledRule {
	t.Helper()
	g := grammar.NewGrammar("g", nil)
	require.NoError(t, g.AddRule(grammar.NewRule("main", e, grammar.Exported())))
	art, err := NewCompiler(lex, cfg, nil).Compile(g)
	require.NoError(t, err)
	require.Len(t, art.Rules(), 1)
	return art.Rules()[0]
}

// wordArcs returns the input labels of plain word arcs in insertion
// order, skipping epsilon-like and nonterminal labels.
func wordArcs(g *wfst.Graph) []string {
	var words []string
	for _, a := range g.Arcs() {
		switch a.In {
		case wfst.Epsilon, wfst.EpsilonDisambig, wfst.Silence, wfst.NontermDictation:
			continue
		}
		words = append(words, a.In)
	}
	return words
}

func hasBackArc(g *wfst.Graph) bool {
	for _, a := range g.Arcs() {
		if a.In == wfst.EpsilonDisambig {
			return true
		}
	}
	return false
}

func TestCompileLiteralChain(t *testing.T) {
	t.Parallel()

	lex := NewStaticLexicon("hello", "world")
	cr := compileElement(t, lex, Config{}, grammar.NewLiteral("Hello World"))

	require.Equal(t, []string{"hello", "world"}, wordArcs(cr.Graph))
	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
	require.True(t, cr.Graph.Final(cr.Final))
	require.False(t, cr.Dictation)
}

func TestCompileLiteralWeightOnFirstArcOnly(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewLiteral("hello world", grammar.WithWeight(3)))

	var weights []float64
	for _, a := range cr.Graph.Arcs() {
		if a.In == wfst.Epsilon {
			continue
		}
		weights = append(weights, a.Weight)
	}
	require.Equal(t, []float64{3, 1}, weights)
}

func TestCompileSkipsUnexportedRules(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	helper := grammar.NewRule("helper", grammar.NewLiteral("red"))
	require.NoError(t, g.AddRule(helper))
	require.NoError(t, g.AddRule(grammar.NewRule("main",
		grammar.NewRuleRef(helper), grammar.Exported())))

	art, err := NewCompiler(Permissive(), Config{}, nil).Compile(g)
	require.NoError(t, err)

	require.Len(t, art.Rules(), 1)
	require.Equal(t, "main", art.Rules()[0].Rule.Name())
	require.Nil(t, art.Rule(helper))

	// The helper's body was spliced into the referencing rule's graph.
	require.Equal(t, []string{"red"}, wordArcs(art.Rules()[0].Graph))
	require.True(t, art.Rules()[0].Graph.HasPath(art.Rules()[0].Start, art.Rules()[0].Final))
}

func TestCompileRequiresRootElement(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	require.NoError(t, g.AddRule(grammar.NewRule("hollow", nil, grammar.Exported())))

	_, err := NewCompiler(Permissive(), Config{}, nil).Compile(g)
	require.ErrorContains(t, err, `compile rule "hollow" in grammar "g"`)
	require.ErrorContains(t, err, "no root element")
}

func TestCompileRejectsReferenceToImportedRule(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	imported := grammar.NewRule("dgndictation", nil, grammar.Imported())
	require.NoError(t, g.AddRule(imported))
	require.NoError(t, g.AddRule(grammar.NewRule("main",
		grammar.NewRuleRef(imported), grammar.Exported())))

	_, err := NewCompiler(Permissive(), Config{}, nil).Compile(g)
	require.ErrorContains(t, err, `cannot inline rule "dgndictation"`)
}

func TestCompileAlternativeFansOutFromOneState(t *testing.T) {
	t.Parallel()

	e := grammar.NewAlternative([]grammar.Element{
		grammar.NewLiteral("red"),
		grammar.NewLiteral("green"),
		grammar.NewLiteral("blue"),
	})
	cr := compileElement(t, Permissive(), Config{}, e)

	require.ElementsMatch(t, []string{"red", "green", "blue"}, wordArcs(cr.Graph))
	for _, a := range cr.Graph.Arcs() {
		if a.In == wfst.Epsilon {
			continue
		}
		require.Equal(t, cr.Start, a.Src)
		require.Equal(t, cr.Final, a.Dst)
	}
}

func TestCompileWeightedAlternativeAddsLinkageState(t *testing.T) {
	t.Parallel()

	e := grammar.NewAlternative([]grammar.Element{
		grammar.NewLiteral("red"),
		grammar.NewLiteral("green"),
	}, grammar.WithWeight(2.5))
	cr := compileElement(t, Permissive(), Config{}, e)

	var links []wfst.Arc
	for _, a := range cr.Graph.Arcs() {
		if a.Src == cr.Start && a.In == wfst.Epsilon && a.Weight == 2.5 {
			links = append(links, a)
		}
	}
	require.Len(t, links, 1, "weight should hang off a single linkage arc")

	for _, a := range cr.Graph.Arcs() {
		if a.In == wfst.Epsilon {
			continue
		}
		require.Equal(t, links[0].Dst, a.Src, "children fan out from the linkage state")
		require.Equal(t, cr.Final, a.Dst)
	}
}

func TestCompileOptionalAddsEpsilonBypass(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewOptional(grammar.NewLiteral("maybe")))

	require.Equal(t, []string{"maybe"}, wordArcs(cr.Graph))

	bypass := false
	for _, a := range cr.Graph.Arcs() {
		if a.Src == cr.Start && a.Dst == cr.Final && a.In == wfst.Epsilon {
			bypass = true
		}
	}
	require.True(t, bypass, "optional needs an epsilon bypass around its child")
}

func TestCompileSequenceThreadsStates(t *testing.T) {
	t.Parallel()

	e := grammar.NewSequence([]grammar.Element{
		grammar.NewLiteral("a"),
		grammar.NewAlternative([]grammar.Element{
			grammar.NewLiteral("b"),
			grammar.NewLiteral("c"),
		}),
		grammar.NewOptional(grammar.NewLiteral("d")),
	})
	cr := compileElement(t, Permissive(), Config{}, e)

	require.Equal(t, []string{"a", "b", "c", "d"}, wordArcs(cr.Graph))
	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
}

func TestCompileEmptySequenceReachesFinal(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{}, grammar.NewSequence(nil))

	require.Empty(t, wordArcs(cr.Graph))
	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
	require.True(t, cr.Graph.HasEpsPath(cr.Start, cr.Final))
}

func TestCompileRepetitionEmitsLoop(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewRepetition(grammar.NewLiteral("go"), 1, 5, true))

	// One child copy regardless of max; the loop carries the rest.
	require.Equal(t, []string{"go"}, wordArcs(cr.Graph))
	require.True(t, hasBackArc(cr.Graph))

	var word, back wfst.Arc
	for _, a := range cr.Graph.Arcs() {
		switch a.In {
		case "go":
			word = a
		case wfst.EpsilonDisambig:
			back = a
		}
	}
	require.Equal(t, word.Dst, back.Src, "back-arc leaves the child's exit")
	require.Equal(t, word.Src, back.Dst, "back-arc re-enters the child's entry")
	require.Equal(t, wfst.Epsilon, back.Out)
	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
}

func TestCompileRepetitionZeroWidthChildUnrolls(t *testing.T) {
	t.Parallel()

	child := grammar.NewOptional(grammar.NewLiteral("go"))
	cr := compileElement(t, Permissive(), Config{},
		grammar.NewRepetition(child, 1, 3, true))

	// A child that can match empty would make the loop an epsilon cycle,
	// so the compiler must fall back to bounded copies.
	require.False(t, hasBackArc(cr.Graph))
	require.Equal(t, []string{"go", "go", "go"}, wordArcs(cr.Graph))
	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
}

func TestCompileRepetitionMinZeroUnrolls(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewRepetition(grammar.NewLiteral("go"), 0, 2, true))

	require.False(t, hasBackArc(cr.Graph))
	require.Equal(t, []string{"go", "go"}, wordArcs(cr.Graph))
	require.True(t, cr.Graph.HasEpsPath(cr.Start, cr.Final), "zero repetitions must stay matchable")
}

func TestCompileRepetitionWithoutOptimizeUnrolls(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewRepetition(grammar.NewLiteral("go"), 2, 4, false))

	require.False(t, hasBackArc(cr.Graph))
	require.Equal(t, []string{"go", "go", "go", "go"}, wordArcs(cr.Graph))

	// The two optional copies each carry an epsilon stop-arc to final.
	stops := 0
	for _, a := range cr.Graph.Arcs() {
		if a.Dst == cr.Final && a.In == wfst.Epsilon {
			stops++
		}
	}
	require.Equal(t, 2, stops)
	require.False(t, cr.Graph.HasEpsPath(cr.Start, cr.Final), "two copies stay mandatory")
}

func TestCompileListRefExpandsItemsAndRegistersDependency(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	colors := grammar.NewList("colors", "red", "light blue")
	require.NoError(t, g.AddList(colors))
	require.NoError(t, g.AddRule(grammar.NewRule("main",
		grammar.NewListRef(colors), grammar.Exported())))

	art, err := NewCompiler(Permissive(), Config{}, nil).Compile(g)
	require.NoError(t, err)

	cr := art.Rules()[0]
	require.Equal(t, []string{"red", "light", "blue"}, wordArcs(cr.Graph))

	deps := art.Dependents(colors)
	require.Len(t, deps, 1)
	require.Same(t, cr, deps[0])
}

func TestCompileDictListRefUsesSpokenForms(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	numbers := grammar.NewDictList("numbers")
	require.NoError(t, g.AddList(numbers))
	require.NoError(t, numbers.Set("forty five", 45))
	require.NoError(t, g.AddRule(grammar.NewRule("main",
		grammar.NewDictListRef(numbers), grammar.Exported())))

	art, err := NewCompiler(Permissive(), Config{}, nil).Compile(g)
	require.NoError(t, err)

	cr := art.Rules()[0]
	require.Equal(t, []string{"forty", "five"}, wordArcs(cr.Graph))
	require.Len(t, art.Dependents(numbers), 1)
}

func TestUpdateListRecompilesOnlyDependents(t *testing.T) {
	t.Parallel()

	g := grammar.NewGrammar("g", nil)
	colors := grammar.NewList("colors", "red")
	require.NoError(t, g.AddList(colors))
	withList := grammar.NewRule("with_list", grammar.NewListRef(colors), grammar.Exported())
	plain := grammar.NewRule("plain", grammar.NewLiteral("hello"), grammar.Exported())
	require.NoError(t, g.AddRule(withList))
	require.NoError(t, g.AddRule(plain))

	c := NewCompiler(Permissive(), Config{}, nil)
	art, err := c.Compile(g)
	require.NoError(t, err)

	crList := art.Rule(withList)
	crPlain := art.Rule(plain)
	oldList := crList.Graph
	oldPlain := crPlain.Graph

	require.NoError(t, colors.Append("green"))
	require.NoError(t, c.UpdateList(art, colors))

	require.NotSame(t, oldList, crList.Graph, "list dependent gets a fresh graph")
	require.Same(t, oldPlain, crPlain.Graph, "unrelated rule keeps its graph")
	require.Equal(t, []string{"red", "green"}, wordArcs(crList.Graph))

	// Dependency tracking survives recompilation, so the next update works
	// the same way.
	require.Len(t, art.Dependents(colors), 1)
	require.NoError(t, colors.Remove("red"))
	require.NoError(t, c.UpdateList(art, colors))
	require.Equal(t, []string{"green"}, wordArcs(crList.Graph))
}

func TestCompileDictation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cloud bool
		out   string
	}{
		{name: "plain", cloud: false, out: wfst.NontermDictation},
		{name: "cloud", cloud: true, out: wfst.NontermDictationCloud},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cr := compileElement(t, Permissive(), Config{}, grammar.NewDictation(tt.cloud))
			require.True(t, cr.Dictation)

			var entry, end *wfst.Arc
			for _, a := range cr.Graph.Arcs() {
				switch {
				case a.In == wfst.NontermDictation:
					entry = &a
				case a.Out == wfst.NontermEnd:
					end = &a
				}
			}
			require.NotNil(t, entry)
			require.Equal(t, tt.out, entry.Out)
			require.NotNil(t, end)
			require.Equal(t, wfst.Epsilon, end.In)
			require.Equal(t, entry.Dst, end.Src)
			require.Equal(t, cr.Final, end.Dst)
		})
	}
}

func TestCompileImpossibleUsesPlaceholder(t *testing.T) {
	t.Parallel()

	lex := NewStaticLexicon("hi", "impossible")
	cr := compileElement(t, lex, Config{}, grammar.NewImpossible())

	require.Equal(t, []string{"impossible"}, wordArcs(cr.Graph))
	for _, a := range cr.Graph.Arcs() {
		if a.In == "impossible" {
			require.Equal(t, impossibleWeight, a.Weight)
		}
	}
}

func TestCompileOOVSubstitutesPlaceholder(t *testing.T) {
	t.Parallel()

	lex := NewStaticLexicon("hello", "placeholder")
	cr := compileElement(t, lex, Config{}, grammar.NewLiteral("hello unknownword"))

	require.Equal(t, []string{"hello", "placeholder"}, wordArcs(cr.Graph))
}

func TestCompileOOVAutoAddKeepsWord(t *testing.T) {
	t.Parallel()

	lex := NewStaticLexicon("hello")
	cr := compileElement(t, lex, Config{AutoAddWords: true}, grammar.NewLiteral("hello zebra"))

	require.Equal(t, []string{"hello", "zebra"}, wordArcs(cr.Graph))
	require.True(t, lex.Contains("zebra"), "auto-added word joins the lexicon")
}

func TestCompileLogsOOVSubstitution(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g := grammar.NewGrammar("g", nil)
	require.NoError(t, g.AddRule(grammar.NewRule("main",
		grammar.NewLiteral("hello bogus"), grammar.Exported())))

	_, err := NewCompiler(NewStaticLexicon("hello"), Config{}, logger).Compile(g)
	require.NoError(t, err)

	require.Contains(t, buf.String(), "substituting placeholder")
	require.Contains(t, buf.String(), "bogus")
}

func TestCompileCoercesInvalidWeights(t *testing.T) {
	t.Parallel()

	cr := compileElement(t, Permissive(), Config{},
		grammar.NewLiteral("hello", grammar.WithWeight(-3)))

	for _, a := range cr.Graph.Arcs() {
		if a.In == "hello" {
			require.Equal(t, impossibleWeight, a.Weight)
		}
	}
}

func TestCompilePatchesPathlessGraph(t *testing.T) {
	t.Parallel()

	// An alternative with no children produces no arcs at all; the
	// compiled rule must still reach its final state.
	lex := NewStaticLexicon("longplaceholder")
	cr := compileElement(t, lex, Config{}, grammar.NewAlternative(nil))

	require.True(t, cr.Graph.HasPath(cr.Start, cr.Final))
	require.Equal(t, []string{"longplaceholder"}, wordArcs(cr.Graph))
	for _, a := range cr.Graph.Arcs() {
		if a.In == "longplaceholder" {
			require.Equal(t, impossibleWeight, a.Weight)
		}
	}
}

func TestStaticLexicon(t *testing.T) {
	t.Parallel()

	lex := NewStaticLexicon("Alpha", "bravo", "checkpoint")

	require.True(t, lex.Contains("alpha"))
	require.True(t, lex.Contains("ALPHA"))
	require.False(t, lex.Contains("delta"))
	require.Equal(t, "checkpoint", lex.Placeholder(), "longest word serves as placeholder")

	phones, err := lex.Add("Echo")
	require.NoError(t, err)
	require.Equal(t, []string{"e", "c", "h", "o"}, phones)
	require.True(t, lex.Contains("echo"))
	require.Equal(t, []string{"alpha", "bravo", "checkpoint", "echo"}, lex.Words())

	_, err = lex.Add("")
	require.Error(t, err)
}

func TestPermissiveLexicon(t *testing.T) {
	t.Parallel()

	lex := Permissive()
	require.True(t, lex.Contains("anything"))
	require.NotEmpty(t, lex.Placeholder())
}

// randomElement grows an arbitrary element tree. Leaves get likelier as
// depth runs out, so generation always terminates.
func randomElement(r *rand.Rand, depth int) grammar.Element {
	words := []string{"alpha", "bravo", "charlie", "delta"}
	if depth <= 0 || r.Intn(3) == 0 {
		switch r.Intn(5) {
		case 0:
			return grammar.NewLiteral(words[r.Intn(len(words))])
		case 1:
			return grammar.NewLiteral(words[r.Intn(len(words))] + " " + words[r.Intn(len(words))])
		case 2:
			return grammar.NewDictation(false)
		case 3:
			return grammar.NewEmpty()
		default:
			return grammar.NewImpossible()
		}
	}
	children := func(n int) []grammar.Element {
		out := make([]grammar.Element, n)
		for i := range out {
			out[i] = randomElement(r, depth-1)
		}
		return out
	}
	switch r.Intn(4) {
	case 0:
		return grammar.NewSequence(children(1 + r.Intn(3)))
	case 1:
		return grammar.NewAlternative(children(1 + r.Intn(3)))
	case 2:
		return grammar.NewOptional(randomElement(r, depth-1))
	default:
		lo := r.Intn(3)
		hi := lo + 1 + r.Intn(3)
		return grammar.NewRepetition(randomElement(r, depth-1), lo, hi, r.Intn(2) == 0)
	}
}

// hasPureEpsCycle reports whether any cycle consists solely of true
// epsilon arcs. Loop back-arcs carry the disambiguation label instead,
// so a decoder following them always consumes the label and makes
// progress.
func hasPureEpsCycle(g *wfst.Graph) bool {
	next := make(map[wfst.State][]wfst.State)
	for _, a := range g.Arcs() {
		if a.In == wfst.Epsilon {
			next[a.Src] = append(next[a.Src], a.Dst)
		}
	}

	const (
		unseen = iota
		active
		closed
	)
	mark := make([]int, g.NumStates())
	var visit func(s wfst.State) bool
	visit = func(s wfst.State) bool {
		mark[s] = active
		for _, n := range next[s] {
			switch mark[n] {
			case active:
				return true
			case unseen:
				if visit(n) {
					return true
				}
			}
		}
		mark[s] = closed
		return false
	}
	for s := wfst.State(0); int(s) < g.NumStates(); s++ {
		if mark[s] == unseen && visit(s) {
			return true
		}
	}
	return false
}

func TestCompileArbitraryElementTrees(t *testing.T) {
	t.Parallel()

	// Fixed seed so a failing shape reproduces.
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		e := randomElement(r, 3)
		cr := compileElement(t, Permissive(), Config{}, e)

		require.True(t, cr.Graph.Final(cr.Final), "tree %d", i)
		require.True(t, cr.Graph.HasPath(cr.Start, cr.Final), "tree %d: final unreachable", i)
		require.False(t, hasPureEpsCycle(cr.Graph), "tree %d: epsilon cycle", i)
	}
}
