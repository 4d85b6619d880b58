// Package wfst provides the weighted state/arc graph that grammar rules
// compile into, with the symbol conventions of the Kaldi decoding
// toolchain and an OpenFST-compatible text export.
package wfst

import (
	"fmt"
	"math"
	"strings"
)

// Arc label symbols. Epsilon consumes no input; the disambiguation
// epsilon breaks what would otherwise be epsilon cycles in loop
// constructs; the nonterminals mark spans handled by the backend's own
// search.
const (
	Epsilon         = "<eps>"
	EpsilonDisambig = "#0"
	Silence         = "!SIL"

	NontermDictation      = "#nonterm:dictation"
	NontermDictationCloud = "#nonterm:dictation_cloud"
	NontermEnd            = "#nonterm:end"
)

// State identifies one graph state. The start state is always 0.
type State int

// Arc is one weighted transition. Weight is a probability; the text
// export converts to tropical (-ln) form.
type Arc struct {
	Src    State
	Dst    State
	In     string
	Out    string
	Weight float64
}

// Graph is a growing weighted transducer. The zero-valued graph is not
// usable; construct with New.
type Graph struct {
	numStates int
	arcs      []Arc
	finals    map[State]float64
}

// New builds a graph holding only the start state.
func New() *Graph {
	return &Graph{numStates: 1, finals: make(map[State]float64)}
}

// Start returns the start state.
func (g *Graph) Start() State { return 0 }

// AddState adds a fresh state. An initial state is reachable from the
// start state by an epsilon arc; a final state accepts with weight 1.
func (g *Graph) AddState(initial, final bool) State {
	s := State(g.numStates)
	g.numStates++
	if initial {
		g.AddEpsArc(g.Start(), s)
	}
	if final {
		g.finals[s] = 1
	}
	return s
}

// AddArc adds a weighted transition between existing states.
func (g *Graph) AddArc(src, dst State, in, out string, weight float64) {
	g.arcs = append(g.arcs, Arc{Src: src, Dst: dst, In: in, Out: out, Weight: weight})
}

// AddEpsArc adds an unweighted epsilon transition.
func (g *Graph) AddEpsArc(src, dst State) {
	g.AddArc(src, dst, Epsilon, Epsilon, 1)
}

// NumStates returns the number of states, including the start state.
func (g *Graph) NumStates() int { return g.numStates }

// NumArcs returns the number of arcs.
func (g *Graph) NumArcs() int { return len(g.arcs) }

// Arcs returns a copy of the arcs in insertion order.
func (g *Graph) Arcs() []Arc {
	arcs := make([]Arc, len(g.arcs))
	copy(arcs, g.arcs)
	return arcs
}

// Final reports whether the state accepts.
func (g *Graph) Final(s State) bool {
	_, ok := g.finals[s]
	return ok
}

// HasPath reports whether dst is reachable from src over any arcs.
func (g *Graph) HasPath(src, dst State) bool {
	return g.search(src, dst, func(Arc) bool { return true })
}

// HasEpsPath reports whether dst is reachable from src consuming no
// input, i.e. over arcs whose input label is epsilon-like.
func (g *Graph) HasEpsPath(src, dst State) bool {
	return g.search(src, dst, func(a Arc) bool {
		switch a.In {
		case Epsilon, EpsilonDisambig, Silence:
			return true
		}
		return false
	})
}

func (g *Graph) search(src, dst State, follow func(Arc) bool) bool {
	if src == dst {
		return true
	}
	next := make(map[State][]State)
	for _, a := range g.arcs {
		if follow(a) {
			next[a.Src] = append(next[a.Src], a.Dst)
		}
	}
	seen := make(map[State]bool)
	queue := []State{src}
	seen[src] = true
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, n := range next[s] {
			if n == dst {
				return true
			}
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}

// Text renders the graph in the OpenFST text format: one line per arc
// with tropical weights, then one line per final state.
func (g *Graph) Text() string {
	var b strings.Builder
	for _, a := range g.arcs {
		fmt.Fprintf(&b, "%d\t%d\t%s\t%s\t%s\n", a.Src, a.Dst, a.In, a.Out, tropical(a.Weight))
	}
	for s := State(0); int(s) < g.numStates; s++ {
		if w, ok := g.finals[s]; ok {
			fmt.Fprintf(&b, "%d\t%s\n", s, tropical(w))
		}
	}
	return b.String()
}

func tropical(prob float64) string {
	w := -math.Log(prob)
	if w == 0 {
		// Normalize the -0 the log of 1 produces.
		w = 0
	}
	return fmt.Sprintf("%g", w)
}
