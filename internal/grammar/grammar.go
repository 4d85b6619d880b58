package grammar

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Engine is the recognition backend a grammar is loaded into. The core
// only drives this contract; session management behind it is the
// backend's concern.
type Engine interface {
	LoadGrammar(g *Grammar) error
	UnloadGrammar(g *Grammar) error
	ActivateRule(r *Rule, g *Grammar) error
	DeactivateRule(r *Rule, g *Grammar) error
	UpdateList(l ListBase, g *Grammar) error
}

var (
	// ErrGrammarLoaded rejects structural changes to a loaded grammar.
	ErrGrammarLoaded = errors.New("grammar is loaded")
	// ErrGrammarNotLoaded rejects operations requiring a loaded grammar.
	ErrGrammarNotLoaded = errors.New("grammar is not loaded")
)

// Grammar is an ordered, name-unique set of rules and lists sharing one
// activation context and loaded as a unit.
type Grammar struct {
	name    string
	context Context
	rules   []*Rule
	lists   []ListBase
	engine  Engine
	loaded  bool
	enabled bool
	log     *slog.Logger
}

// NewGrammar builds an empty grammar. A nil logger discards.
func NewGrammar(name string, logger *slog.Logger) *Grammar {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Grammar{name: name, enabled: true, log: logger.With("grammar", name)}
}

// Name returns the grammar name.
func (g *Grammar) Name() string { return g.name }

// SetContext restricts the whole grammar to windows matched by the
// context.
func (g *Grammar) SetContext(c Context) { g.context = c }

// Context returns the grammar-wide context, or nil for always-active.
func (g *Grammar) Context() Context { return g.context }

// Loaded reports whether the grammar is loaded into an engine.
func (g *Grammar) Loaded() bool { return g.loaded }

// Enabled reports whether recognitions are processed at all.
func (g *Grammar) Enabled() bool { return g.enabled }

// Enable resumes processing of recognitions.
func (g *Grammar) Enable() { g.enabled = true }

// Disable stops processing of recognitions without unloading.
func (g *Grammar) Disable() { g.enabled = false }

// Engine returns the engine the grammar is loaded into, or nil.
func (g *Grammar) Engine() Engine { return g.engine }

// Rules returns the rules in declaration order.
func (g *Grammar) Rules() []*Rule { return slices.Clone(g.rules) }

// Rule returns the named rule, or nil.
func (g *Grammar) Rule(name string) *Rule {
	for _, r := range g.rules {
		if r.name == name {
			return r
		}
	}
	return nil
}

// Lists returns the lists in declaration order.
func (g *Grammar) Lists() []ListBase { return slices.Clone(g.lists) }

// List returns the named list, or nil.
func (g *Grammar) List(name string) ListBase {
	for _, l := range g.lists {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// AddRule adds a rule to the grammar. Adding the same rule instance twice
// is a no-op; a different rule under an existing name is an error, as is
// adding to a loaded grammar.
func (g *Grammar) AddRule(r *Rule) error {
	if g.loaded {
		return fmt.Errorf("add rule %q: %w", r.Name(), ErrGrammarLoaded)
	}
	if slices.Contains(g.rules, r) {
		return nil
	}
	if g.Rule(r.name) != nil {
		return fmt.Errorf("two rules with the same name %q not allowed", r.name)
	}
	if r.grammar != nil && r.grammar != g {
		return fmt.Errorf("rule %q already belongs to grammar %q", r.name, r.grammar.name)
	}
	r.grammar = g
	g.rules = append(g.rules, r)
	return nil
}

// RemoveRule removes the named rule from an unloaded grammar.
func (g *Grammar) RemoveRule(name string) error {
	if g.loaded {
		return fmt.Errorf("remove rule %q: %w", name, ErrGrammarLoaded)
	}
	for i, r := range g.rules {
		if r.name == name {
			r.grammar = nil
			g.rules = slices.Delete(g.rules, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("no rule named %q", name)
}

// AddList adds a list to the grammar. Adding the same list instance twice
// is a no-op; a different list under an existing name is an error, as is
// adding to a loaded grammar.
func (g *Grammar) AddList(l ListBase) error {
	if g.loaded {
		return fmt.Errorf("add list %q: %w", l.Name(), ErrGrammarLoaded)
	}
	for _, existing := range g.lists {
		if existing == l {
			return nil
		}
		if existing.Name() == l.Name() {
			return fmt.Errorf("two lists with the same name %q not allowed", l.Name())
		}
	}
	if err := l.bind(g); err != nil {
		return err
	}
	g.lists = append(g.lists, l)
	return nil
}

// RemoveList removes the named list from an unloaded grammar.
func (g *Grammar) RemoveList(name string) error {
	if g.loaded {
		return fmt.Errorf("remove list %q: %w", name, ErrGrammarLoaded)
	}
	for i, l := range g.lists {
		if l.Name() == name {
			l.unbind()
			g.lists = slices.Delete(g.lists, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("no list named %q", name)
}

// resolveDependencies registers every rule and list reachable from the
// current rules' elements, so references never dangle at compile time.
func (g *Grammar) resolveDependencies() error {
	for _, r := range slices.Clone(g.rules) {
		if r.element == nil {
			if r.imported {
				continue
			}
			return fmt.Errorf("rule %q has no root element", r.name)
		}
		rules, lists := Dependencies(r.element)
		for _, dep := range rules {
			if err := g.AddRule(dep); err != nil {
				return err
			}
			if dep.element == nil && !dep.imported {
				return fmt.Errorf("rule %q has no root element", dep.name)
			}
		}
		for _, dep := range lists {
			if err := g.AddList(dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load resolves rule and list dependencies, hands the grammar to the
// engine, and activates context-free exported rules.
func (g *Grammar) Load(e Engine) error {
	if g.loaded {
		return fmt.Errorf("load grammar %q: %w", g.name, ErrGrammarLoaded)
	}
	if err := g.resolveDependencies(); err != nil {
		return fmt.Errorf("load grammar %q: %w", g.name, err)
	}
	if err := e.LoadGrammar(g); err != nil {
		return fmt.Errorf("load grammar %q: %w", g.name, err)
	}
	g.engine = e
	g.loaded = true
	g.log.Info("grammar loaded", "rules", len(g.rules), "lists", len(g.lists))
	for _, r := range g.rules {
		if r.exported && r.enabled && r.context == nil {
			r.activate()
		}
	}
	for _, l := range g.lists {
		if err := e.UpdateList(l, g); err != nil {
			return fmt.Errorf("load grammar %q: push list %q: %w", g.name, l.Name(), err)
		}
	}
	return nil
}

// Unload withdraws the grammar from its engine.
func (g *Grammar) Unload() error {
	if !g.loaded {
		return fmt.Errorf("unload grammar %q: %w", g.name, ErrGrammarNotLoaded)
	}
	for _, r := range g.rules {
		r.active = false
	}
	err := g.engine.UnloadGrammar(g)
	g.loaded = false
	g.engine = nil
	if err != nil {
		return fmt.Errorf("unload grammar %q: %w", g.name, err)
	}
	g.log.Info("grammar unloaded")
	return nil
}

// ProcessBegin applies grammar and rule contexts against the foreground
// window before an utterance is decoded.
func (g *Grammar) ProcessBegin(w Window) {
	if !g.loaded {
		return
	}
	if !g.enabled || (g.context != nil && !g.context.Matches(w)) {
		for _, r := range g.rules {
			r.deactivate()
		}
		return
	}
	for _, r := range g.rules {
		if r.exported {
			r.ProcessBegin(w)
		}
	}
}

// UpdateList pushes one list's current contents to the engine so the
// rules depending on it are recompiled. Lists of unloaded grammars update
// freely with nothing to push.
func (g *Grammar) UpdateList(l ListBase) error {
	if !slices.Contains(g.lists, l) {
		return fmt.Errorf("update list %q: not a list of grammar %q", l.Name(), g.name)
	}
	if !g.loaded {
		return nil
	}
	if err := g.engine.UpdateList(l, g); err != nil {
		return fmt.Errorf("update list %q in grammar %q: %w", l.Name(), g.name, err)
	}
	g.log.Debug("list updated", "list", l.Name(), "items", len(l.ListItems()))
	return nil
}

func (g *Grammar) logger() *slog.Logger { return g.log }

func (g *Grammar) String() string {
	return fmt.Sprintf("Grammar(%s, %d rules, %d lists)", g.name, len(g.rules), len(g.lists))
}
