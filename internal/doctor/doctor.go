// Package doctor runs structural diagnostics over a built grammar before
// it is handed to a recognition backend.
package doctor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
	"github.com/dictation-toolbox/dragonfly-sub000/internal/kaldi"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes every diagnostic over the grammar. A nil lexicon skips
// vocabulary screening by treating every word as known.
func Run(g *grammar.Grammar, lex kaldi.Lexicon) Report {
	if lex == nil {
		lex = kaldi.Permissive()
	}

	checks := []Check{}
	checks = append(checks, checkExported(g))
	checks = append(checks, checkReachable(g))
	checks = append(checks, checkAlternatives(g))
	checks = append(checks, checkLists(g))
	checks = append(checks, checkRepetitions(g))
	checks = append(checks, checkVocabulary(g, lex))
	checks = append(checks, checkComplexity(g, lex))
	return Report{Checks: checks}
}

// checkExported verifies the grammar exposes at least one exported rule.
func checkExported(g *grammar.Grammar) Check {
	count := 0
	for _, r := range g.Rules() {
		if r.Exported() {
			count++
		}
	}
	if count == 0 {
		return Check{Name: "rules.exported", Pass: false, Message: "no exported rules; nothing can be recognized"}
	}
	return Check{Name: "rules.exported", Pass: true, Message: fmt.Sprintf("%d exported", count)}
}

// checkReachable flags helper rules no exported rule references.
func checkReachable(g *grammar.Grammar) Check {
	reachable := make(map[*grammar.Rule]bool)
	for _, r := range g.Rules() {
		if !r.Exported() {
			continue
		}
		reachable[r] = true
		if r.Element() == nil {
			continue
		}
		deps, _ := grammar.Dependencies(r.Element())
		for _, dep := range deps {
			reachable[dep] = true
		}
	}

	var orphans []string
	for _, r := range g.Rules() {
		if !reachable[r] && !r.Imported() {
			orphans = append(orphans, r.Name())
		}
	}
	if len(orphans) > 0 {
		return Check{Name: "rules.reachable", Pass: false,
			Message: "unreferenced by any exported rule: " + strings.Join(orphans, ", ")}
	}
	return Check{Name: "rules.reachable", Pass: true, Message: "every rule reachable from an exported rule"}
}

// checkAlternatives flags alternatives with no branches, which can never
// match and compile to a placeholder path.
func checkAlternatives(g *grammar.Grammar) Check {
	var offenders []string
	forEachElement(g, func(rule string, e grammar.Element) {
		if alt, ok := e.(*grammar.Alternative); ok && len(alt.Children()) == 0 {
			offenders = append(offenders, rule)
		}
	})
	if len(offenders) > 0 {
		return Check{Name: "elements.alternatives", Pass: false,
			Message: "empty alternative in rule: " + strings.Join(dedupe(offenders), ", ")}
	}
	return Check{Name: "elements.alternatives", Pass: true, Message: "no empty alternatives"}
}

// checkLists flags lists that currently hold no items.
func checkLists(g *grammar.Grammar) Check {
	var empty []string
	for _, l := range g.Lists() {
		if len(l.ListItems()) == 0 {
			empty = append(empty, l.Name())
		}
	}
	if len(empty) > 0 {
		return Check{Name: "lists.nonempty", Pass: false,
			Message: "no items in list: " + strings.Join(empty, ", ")}
	}
	return Check{Name: "lists.nonempty", Pass: true, Message: fmt.Sprintf("%d lists populated", len(g.Lists()))}
}

// checkRepetitions flags repetitions whose body can match zero tokens:
// such loops decode ambiguously and defeat compact loop compilation.
func checkRepetitions(g *grammar.Grammar) Check {
	var offenders []string
	forEachElement(g, func(rule string, e grammar.Element) {
		if rep, ok := e.(*grammar.Repetition); ok && zeroWidth(rep.Children()[0]) {
			offenders = append(offenders, rule)
		}
	})
	if len(offenders) > 0 {
		return Check{Name: "elements.repetitions", Pass: false,
			Message: "repetition body can match zero tokens in rule: " + strings.Join(dedupe(offenders), ", ")}
	}
	return Check{Name: "elements.repetitions", Pass: true, Message: "no zero-width repetition bodies"}
}

// checkVocabulary screens literal and list words against the lexicon.
func checkVocabulary(g *grammar.Grammar, lex kaldi.Lexicon) Check {
	missing := make(map[string]bool)
	forEachElement(g, func(_ string, e grammar.Element) {
		switch e := e.(type) {
		case *grammar.Literal:
			for _, w := range e.Words() {
				if !lex.Contains(w) {
					missing[strings.ToLower(w)] = true
				}
			}
		case *grammar.ListRef:
			for _, item := range e.List().ListItems() {
				for _, w := range strings.Fields(item) {
					if !lex.Contains(w) {
						missing[strings.ToLower(w)] = true
					}
				}
			}
		}
	})
	if len(missing) > 0 {
		words := make([]string, 0, len(missing))
		for w := range missing {
			words = append(words, w)
		}
		sort.Strings(words)
		return Check{Name: "vocabulary", Pass: false,
			Message: "out of vocabulary: " + strings.Join(words, ", ")}
	}
	return Check{Name: "vocabulary", Pass: true, Message: "every word in lexicon"}
}

// checkComplexity trial-compiles the grammar and reports graph sizes.
func checkComplexity(g *grammar.Grammar, lex kaldi.Lexicon) Check {
	art, err := kaldi.NewCompiler(lex, kaldi.Config{}, nil).Compile(g)
	if err != nil {
		return Check{Name: "compile", Pass: false, Message: err.Error()}
	}
	states, arcs := 0, 0
	for _, cr := range art.Rules() {
		states += cr.Graph.NumStates()
		arcs += cr.Graph.NumArcs()
	}
	return Check{Name: "compile", Pass: true,
		Message: fmt.Sprintf("%d rules, %d states, %d arcs", len(art.Rules()), states, arcs)}
}

// forEachElement visits every element of every rule tree, tagged with the
// owning rule's name. Rule references are not followed: referenced rules
// are visited through their own grammar entry.
func forEachElement(g *grammar.Grammar, visit func(rule string, e grammar.Element)) {
	var walk func(rule string, e grammar.Element)
	walk = func(rule string, e grammar.Element) {
		visit(rule, e)
		for _, child := range e.Children() {
			walk(rule, child)
		}
	}
	for _, r := range g.Rules() {
		if r.Element() != nil {
			walk(r.Name(), r.Element())
		}
	}
}

// zeroWidth reports whether the element can match without consuming any
// tokens. Rule references recurse; rules are immutable after
// construction, so reference chains cannot form cycles.
func zeroWidth(e grammar.Element) bool {
	switch e := e.(type) {
	case *grammar.Optional, *grammar.Empty:
		return true
	case *grammar.Literal:
		return len(e.Words()) == 0
	case *grammar.Sequence:
		for _, child := range e.Children() {
			if !zeroWidth(child) {
				return false
			}
		}
		return true
	case *grammar.Alternative:
		for _, child := range e.Children() {
			if zeroWidth(child) {
				return true
			}
		}
		return false
	case *grammar.Repetition:
		return e.Min() == 0 || zeroWidth(e.Children()[0])
	case *grammar.RuleRef:
		return e.Rule() != nil && e.Rule().Element() != nil && zeroWidth(e.Rule().Element())
	case *grammar.ListRef:
		for _, item := range e.List().ListItems() {
			if len(strings.Fields(item)) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
