package kaldi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/wfst"
)

// impossibleWeight is the near-zero probability for placeholder arcs and
// coerced invalid weights. Exactly zero breaks the downstream automaton
// toolchain.
const impossibleWeight = 1e-10

// Config tunes compilation.
type Config struct {
	// AutoAddWords generates pronunciations for out-of-vocabulary words
	// instead of substituting the placeholder.
	AutoAddWords bool
}

// Compiler lowers a grammar's exported rules into per-rule automaton
// graphs.
type Compiler struct {
	lexicon Lexicon
	cfg     Config
	log     *slog.Logger
}

// NewCompiler builds a compiler over the given lexicon. A nil logger
// discards.
func NewCompiler(lexicon Lexicon, cfg Config, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{lexicon: lexicon, cfg: cfg, log: logger}
}

// CompiledRule is one exported rule lowered into its own graph, with the
// designated entry and accept states.
type CompiledRule struct {
	Rule      *grammar.Rule
	Graph     *wfst.Graph
	Start     wfst.State
	Final     wfst.State
	Dictation bool
}

// Compiled holds one grammar's compiled rules plus the list dependency
// index driving selective recompilation.
type Compiled struct {
	grammar *grammar.Grammar
	rules   []*CompiledRule
	byList  map[uuid.UUID][]*CompiledRule
}

// Grammar returns the compiled grammar.
func (a *Compiled) Grammar() *grammar.Grammar { return a.grammar }

// Rules returns the compiled rules in grammar order.
func (a *Compiled) Rules() []*CompiledRule { return slices.Clone(a.rules) }

// Rule returns the compiled form of the given rule, or nil.
func (a *Compiled) Rule(r *grammar.Rule) *CompiledRule {
	for _, cr := range a.rules {
		if cr.Rule == r {
			return cr
		}
	}
	return nil
}

// Dependents returns the compiled rules whose graphs embed the list's
// current items.
func (a *Compiled) Dependents(l grammar.ListBase) []*CompiledRule {
	return slices.Clone(a.byList[l.ID()])
}

func (a *Compiled) drop(cr *CompiledRule) {
	for id, deps := range a.byList {
		if i := slices.Index(deps, cr); i >= 0 {
			a.byList[id] = slices.Delete(deps, i, i+1)
		}
	}
}

// Compile lowers every exported rule of the grammar. Rules referenced by
// others are spliced inline rather than compiled as separate roots.
func (c *Compiler) Compile(g *grammar.Grammar) (*Compiled, error) {
	art := &Compiled{grammar: g, byList: make(map[uuid.UUID][]*CompiledRule)}
	for _, r := range g.Rules() {
		if !r.Exported() {
			continue
		}
		cr := &CompiledRule{Rule: r}
		if err := c.compileRoot(art, cr); err != nil {
			return nil, err
		}
		art.rules = append(art.rules, cr)
	}
	c.log.Debug("grammar compiled", "grammar", g.Name(), "rules", len(art.rules))
	return art, nil
}

// UpdateList recompiles exactly the rules depending on the list, leaving
// every other compiled graph untouched.
func (c *Compiler) UpdateList(art *Compiled, l grammar.ListBase) error {
	deps := slices.Clone(art.byList[l.ID()])
	for _, cr := range deps {
		art.drop(cr)
		if err := c.compileRoot(art, cr); err != nil {
			return err
		}
	}
	if len(deps) > 0 {
		c.log.Debug("list dependents recompiled", "list", l.Name(), "rules", len(deps))
	}
	return nil
}

func (c *Compiler) compileRoot(art *Compiled, cr *CompiledRule) error {
	r := cr.Rule
	wrap := func(err error) error {
		return fmt.Errorf("compile rule %q in grammar %q: %w", r.Name(), art.grammar.Name(), err)
	}
	if r.Element() == nil {
		return wrap(errors.New("rule has no root element"))
	}

	rc := &ruleCompile{c: c, art: art, cr: cr, graph: wfst.New()}
	src := rc.graph.AddState(true, false)
	dst := rc.graph.AddState(false, true)
	if err := rc.element(r.Element(), src, dst); err != nil {
		return wrap(err)
	}
	if !rc.graph.HasPath(src, dst) {
		c.log.Warn("rule graph has no start-to-final path; splicing placeholder arc",
			"rule", r.Name(), "grammar", art.grammar.Name())
		word := strings.ToLower(c.lexicon.Placeholder())
		rc.graph.AddArc(src, dst, word, word, impossibleWeight)
	}

	cr.Graph = rc.graph
	cr.Start = src
	cr.Final = dst
	cr.Dictation = false
	for _, a := range rc.graph.Arcs() {
		if a.In == wfst.NontermDictation {
			cr.Dictation = true
			break
		}
	}
	return nil
}

// ruleCompile is the per-root compilation state.
type ruleCompile struct {
	c     *Compiler
	art   *Compiled
	cr    *CompiledRule
	graph *wfst.Graph
}

func (rc *ruleCompile) element(e grammar.Element, src, dst wfst.State) error {
	switch e := e.(type) {
	case *grammar.Sequence:
		return rc.sequence(e.Children(), src, dst)
	case *grammar.Alternative:
		return rc.alternative(e, src, dst)
	case *grammar.Optional:
		if err := rc.element(e.Children()[0], src, dst); err != nil {
			return err
		}
		rc.graph.AddEpsArc(src, dst)
		return nil
	case *grammar.Repetition:
		return rc.repetition(e, src, dst)
	case *grammar.Literal:
		return rc.literal(e.Words(), e.Weight(), src, dst)
	case *grammar.RuleRef:
		return rc.ruleRef(e, src, dst)
	case *grammar.ListRef:
		return rc.listRef(e.List(), src, dst)
	case *grammar.DictListRef:
		return rc.listRef(e.Dict(), src, dst)
	case *grammar.Dictation:
		rc.dictation(e, src, dst)
		return nil
	case *grammar.Impossible:
		word := strings.ToLower(rc.c.lexicon.Placeholder())
		rc.graph.AddArc(src, dst, word, word, impossibleWeight)
		return nil
	case *grammar.Empty:
		rc.graph.AddEpsArc(src, dst)
		return nil
	default:
		return fmt.Errorf("no compiler for element %T", e)
	}
}

func (rc *ruleCompile) sequence(children []grammar.Element, src, dst wfst.State) error {
	if len(children) == 0 {
		rc.graph.AddEpsArc(src, dst)
		return nil
	}
	cur := src
	for i, child := range children {
		next := dst
		if i < len(children)-1 {
			next = rc.graph.AddState(false, false)
		}
		if err := rc.element(child, cur, next); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// alternative wires every child between the same pair of states. A
// non-unit weight hangs off a linkage state so the probability mass
// attaches without disturbing arcs other elements added at src.
func (rc *ruleCompile) alternative(e *grammar.Alternative, src, dst wfst.State) error {
	fan := src
	if w := rc.weight(e.Weight()); w != 1 {
		fan = rc.graph.AddState(false, false)
		rc.graph.AddArc(src, fan, wfst.Epsilon, wfst.Epsilon, w)
	}
	for _, child := range e.Children() {
		if err := rc.element(child, fan, dst); err != nil {
			return err
		}
	}
	return nil
}

// repetition compiles the compact loop form when the child provably
// consumes input: one child copy bracketed by epsilons with a
// disambiguation back-arc. A child that can match empty would turn that
// back-arc into an undecodable epsilon cycle, so those fall back to
// bounded unrolling, as does min=0.
func (rc *ruleCompile) repetition(e *grammar.Repetition, src, dst wfst.State) error {
	child := e.Children()[0]
	min, max := e.Min(), e.Max()

	if e.Optimize() && min >= 1 {
		s1 := rc.graph.AddState(false, false)
		s2 := rc.graph.AddState(false, false)
		rc.graph.AddEpsArc(src, s1)
		if err := rc.element(child, s1, s2); err != nil {
			return err
		}
		if !rc.graph.HasEpsPath(s1, s2) {
			rc.graph.AddArc(s2, s1, wfst.EpsilonDisambig, wfst.Epsilon, 1)
			rc.graph.AddEpsArc(s2, dst)
			return nil
		}
		rc.c.log.Warn("repetition child can match empty; unrolling instead of looping",
			"rule", rc.cr.Rule.Name())
		return rc.unroll(child, s2, dst, min-1, max-min)
	}
	return rc.unroll(child, src, dst, min, max-min)
}

// unroll chains mandatory child copies, then optional copies each
// carrying an epsilon stop-arc to dst.
func (rc *ruleCompile) unroll(child grammar.Element, from, dst wfst.State, mandatory, extra int) error {
	if mandatory == 0 && extra == 0 {
		rc.graph.AddEpsArc(from, dst)
		return nil
	}
	cur := from
	for i := 0; i < mandatory; i++ {
		next := dst
		if i < mandatory-1 || extra > 0 {
			next = rc.graph.AddState(false, false)
		}
		if err := rc.element(child, cur, next); err != nil {
			return err
		}
		cur = next
	}
	for i := 0; i < extra; i++ {
		rc.graph.AddEpsArc(cur, dst)
		next := dst
		if i < extra-1 {
			next = rc.graph.AddState(false, false)
		}
		if err := rc.element(child, cur, next); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func (rc *ruleCompile) literal(words []string, weight float64, src, dst wfst.State) error {
	if len(words) == 0 {
		rc.graph.AddEpsArc(src, dst)
		return nil
	}
	w := rc.weight(weight)
	cur := src
	for i, word := range words {
		word = rc.word(word)
		next := dst
		if i < len(words)-1 {
			next = rc.graph.AddState(false, false)
		}
		arcWeight := 1.0
		if i == 0 {
			arcWeight = w
		}
		rc.graph.AddArc(cur, next, word, word, arcWeight)
		cur = next
	}
	return nil
}

// word resolves one literal word against the lexicon, substituting the
// placeholder or generating a pronunciation for out-of-vocabulary words.
// Neither case is fatal.
func (rc *ruleCompile) word(word string) string {
	word = strings.ToLower(word)
	if rc.c.lexicon.Contains(word) {
		return word
	}
	if rc.c.cfg.AutoAddWords {
		phones, err := rc.c.lexicon.Add(word)
		if err == nil {
			rc.c.log.Warn("word not in lexicon; generated pronunciation",
				"word", word, "phones", strings.Join(phones, " "))
			return word
		}
		rc.c.log.Error("adding word to lexicon failed", "word", word, "error", err)
	}
	rc.c.log.Warn("word not in lexicon; substituting placeholder (it will not be recognized)",
		"word", word)
	return strings.ToLower(rc.c.lexicon.Placeholder())
}

// ruleRef splices the target rule's element inline. Rules are immutable
// after construction, so reference chains cannot form cycles.
func (rc *ruleCompile) ruleRef(e *grammar.RuleRef, src, dst wfst.State) error {
	target := e.Rule()
	if target == nil {
		return errors.New("rule reference without a target")
	}
	if target.Element() == nil {
		return fmt.Errorf("cannot inline rule %q with no root element", target.Name())
	}
	entry := rc.graph.AddState(false, false)
	exit := rc.graph.AddState(false, false)
	rc.graph.AddArc(src, entry, wfst.Epsilon, wfst.Epsilon, rc.weight(e.Weight()))
	if err := rc.element(target.Element(), entry, exit); err != nil {
		return err
	}
	rc.graph.AddEpsArc(exit, dst)
	return nil
}

// listRef expands the list's current items eagerly and records the
// dependency so a later mutation recompiles this rule.
func (rc *ruleCompile) listRef(l grammar.ListBase, src, dst wfst.State) error {
	deps := rc.art.byList[l.ID()]
	if !slices.Contains(deps, rc.cr) {
		rc.art.byList[l.ID()] = append(deps, rc.cr)
	}
	for _, item := range l.ListItems() {
		if err := rc.literal(strings.Fields(item), 1, src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (rc *ruleCompile) dictation(e *grammar.Dictation, src, dst wfst.State) {
	out := wfst.NontermDictation
	if e.Cloud() {
		out = wfst.NontermDictationCloud
	}
	extra := rc.graph.AddState(false, false)
	rc.graph.AddArc(src, extra, wfst.NontermDictation, out, 1)
	rc.graph.AddArc(extra, dst, wfst.Epsilon, wfst.NontermEnd, 1)
}

// weight validates a recognition weight, coercing invalid values to the
// near-zero epsilon rather than failing the compile.
func (rc *ruleCompile) weight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		rc.c.log.Error("invalid element weight; coercing to epsilon",
			"weight", w, "rule", rc.cr.Rule.Name())
		return impossibleWeight
	}
	return w
}
