// Package natlink lowers grammars into the legacy chunked binary
// encoding consumed by Dragon-style recognition backends: four interned
// name/ID tables plus a flat region-token definition per rule.
package natlink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

// Token type codes of the binary rule encoding.
const (
	typeStart uint16 = 1
	typeEnd   uint16 = 2
	typeWord  uint16 = 3
	typeRule  uint16 = 4
	typeList  uint16 = 6
)

// Region values carried by start/end tokens.
const (
	valueSequence    uint32 = 1
	valueAlternative uint32 = 2
	valueRepetition  uint32 = 3
	valueOptional    uint32 = 4
)

// emptyListName is the always-empty list an Impossible element
// references, yielding a region the backend can never match.
const emptyListName = "_empty_list"

// token is one entry of a rule's flat definition stream.
type token struct {
	Type  uint16
	Prob  uint16
	Value uint32
}

// internTable assigns stable 1-based IDs in first-use order.
type internTable struct {
	ids   map[string]uint32
	names []string
}

func newInternTable() *internTable {
	return &internTable{ids: make(map[string]uint32)}
}

func (t *internTable) intern(name string) uint32 {
	if id, ok := t.ids[name]; ok {
		return id
	}
	t.names = append(t.names, name)
	id := uint32(len(t.names))
	t.ids[name] = id
	return id
}

func (t *internTable) lookup(name string) (uint32, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Compiler assembles the binary grammar encoding one rule definition at a
// time. Misuse, such as emitting terminals outside a rule or finalizing
// mid-definition, is rejected by the definition-state machine.
type Compiler struct {
	words *internTable
	lists *internTable
	rules *internTable

	imports     map[string]bool
	exports     map[string]bool
	definitions map[string][]token

	state   defState
	current string
	export  bool
	tokens  []token
	regions []uint32

	log *slog.Logger
}

// NewCompiler returns an empty compiler. A nil logger discards.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{
		words:       newInternTable(),
		lists:       newInternTable(),
		rules:       newInternTable(),
		imports:     make(map[string]bool),
		exports:     make(map[string]bool),
		definitions: make(map[string][]token),
		state:       stateIdle,
		log:         logger,
	}
}

func (c *Compiler) step(event defEvent, op string) error {
	next, err := transition(c.state, event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.state = next
	return nil
}

// StartRule opens a rule definition.
func (c *Compiler) StartRule(name string, exported bool) error {
	op := fmt.Sprintf("start rule %q", name)
	if _, ok := c.definitions[name]; ok {
		return fmt.Errorf("%s: defined more than once", op)
	}
	if c.imports[name] {
		return fmt.Errorf("%s: cannot be both imported and defined", op)
	}
	if err := c.step(eventBeginRule, op); err != nil {
		return err
	}
	c.current = name
	c.export = exported
	c.tokens = nil
	c.regions = nil
	return nil
}

// EndRule closes the current rule definition and registers it.
func (c *Compiler) EndRule() error {
	if len(c.regions) > 0 {
		return fmt.Errorf("end rule %q: region still open", c.current)
	}
	if err := c.step(eventEndRule, "end rule"); err != nil {
		return err
	}
	c.rules.intern(c.current)
	if c.export {
		c.exports[c.current] = true
	}
	c.definitions[c.current] = c.tokens
	c.log.Debug("rule definition closed", "rule", c.current, "tokens", len(c.tokens))
	c.current = ""
	c.export = false
	c.tokens = nil
	return nil
}

// ImportRule registers a rule defined by the recognition engine rather
// than this grammar.
func (c *Compiler) ImportRule(name string) error {
	if _, ok := c.definitions[name]; ok {
		return fmt.Errorf("import rule %q: cannot be both imported and defined", name)
	}
	c.rules.intern(name)
	c.imports[name] = true
	return nil
}

// StartSequence opens a sequence region in the current definition.
func (c *Compiler) StartSequence() error { return c.startRegion(valueSequence, "sequence") }

// EndSequence closes the innermost region, which must be a sequence.
func (c *Compiler) EndSequence() error { return c.endRegion(valueSequence, "sequence") }

// StartAlternative opens an alternative region in the current definition.
func (c *Compiler) StartAlternative() error { return c.startRegion(valueAlternative, "alternative") }

// EndAlternative closes the innermost region, which must be an
// alternative.
func (c *Compiler) EndAlternative() error { return c.endRegion(valueAlternative, "alternative") }

// StartRepetition opens a repetition region, meaning one-or-more of its
// contents, in the current definition.
func (c *Compiler) StartRepetition() error { return c.startRegion(valueRepetition, "repetition") }

// EndRepetition closes the innermost region, which must be a repetition.
func (c *Compiler) EndRepetition() error { return c.endRegion(valueRepetition, "repetition") }

// StartOptional opens an optional region in the current definition.
func (c *Compiler) StartOptional() error { return c.startRegion(valueOptional, "optional") }

// EndOptional closes the innermost region, which must be an optional.
func (c *Compiler) EndOptional() error { return c.endRegion(valueOptional, "optional") }

func (c *Compiler) startRegion(value uint32, kind string) error {
	if err := c.step(eventEmit, "start "+kind); err != nil {
		return err
	}
	c.regions = append(c.regions, value)
	c.tokens = append(c.tokens, token{Type: typeStart, Value: value})
	return nil
}

func (c *Compiler) endRegion(value uint32, kind string) error {
	if err := c.step(eventEmit, "end "+kind); err != nil {
		return err
	}
	if len(c.regions) == 0 {
		return fmt.Errorf("end %s: no region open", kind)
	}
	if top := c.regions[len(c.regions)-1]; top != value {
		return fmt.Errorf("end %s: innermost open region does not match", kind)
	}
	c.regions = c.regions[:len(c.regions)-1]
	c.tokens = append(c.tokens, token{Type: typeEnd, Value: value})
	return nil
}

// AddWord appends a literal word terminal, interning the word on first
// use.
func (c *Compiler) AddWord(word string) error {
	if err := c.step(eventEmit, fmt.Sprintf("add word %q", word)); err != nil {
		return err
	}
	c.tokens = append(c.tokens, token{Type: typeWord, Value: c.words.intern(word)})
	return nil
}

// AddList appends a list terminal, interning the list name on first use.
func (c *Compiler) AddList(name string) error {
	if err := c.step(eventEmit, fmt.Sprintf("add list %q", name)); err != nil {
		return err
	}
	c.tokens = append(c.tokens, token{Type: typeList, Value: c.lists.intern(name)})
	return nil
}

// AddRuleRef appends a reference to another rule, registering the name on
// first use. A name may be referenced as imported or as local, never
// both.
func (c *Compiler) AddRuleRef(name string, imported bool) error {
	if err := c.step(eventEmit, fmt.Sprintf("add rule reference %q", name)); err != nil {
		return err
	}
	id, known := c.rules.lookup(name)
	switch {
	case !known:
		id = c.rules.intern(name)
		if imported {
			c.imports[name] = true
		}
	case imported != c.imports[name]:
		return fmt.Errorf("rule %q referenced as both imported and not imported", name)
	}
	c.tokens = append(c.tokens, token{Type: typeRule, Value: id})
	return nil
}

// Compile serializes the accumulated tables and definitions into the
// chunked binary form, returning the bytes and the 1-based rule-name
// table recognition results are reported against.
func (c *Compiler) Compile() ([]byte, []string, error) {
	if err := c.step(eventFinalize, "compile"); err != nil {
		return nil, nil, err
	}
	for _, name := range c.rules.names {
		if c.imports[name] {
			continue
		}
		if _, ok := c.definitions[name]; !ok {
			return nil, nil, fmt.Errorf("rule %q is neither imported nor defined", name)
		}
	}
	return c.encode(), c.RuleNames(), nil
}

// RuleNames returns the rule-name table; index 0 is unused so 1-based
// rule IDs index it directly.
func (c *Compiler) RuleNames() []string {
	return append([]string{""}, c.rules.names...)
}

// CompileGrammar lowers every rule of the grammar and finalizes the
// artifact. Imported rules contribute no definition; they enter the
// import table through the references that name them.
func CompileGrammar(g *grammar.Grammar, logger *slog.Logger) ([]byte, []string, error) {
	c := NewCompiler(logger)
	for _, r := range g.Rules() {
		if err := c.compileRule(r); err != nil {
			return nil, nil, fmt.Errorf("compile rule %q in grammar %q: %w", r.Name(), g.Name(), err)
		}
	}
	data, names, err := c.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("compile grammar %q: %w", g.Name(), err)
	}
	c.log.Debug("grammar compiled", "grammar", g.Name(), "bytes", len(data), "rules", len(names)-1)
	return data, names, nil
}

func (c *Compiler) compileRule(r *grammar.Rule) error {
	if r.Imported() {
		return nil
	}
	if r.Element() == nil {
		return errors.New("rule has no root element")
	}
	if err := c.StartRule(r.Name(), r.Exported()); err != nil {
		return err
	}
	if err := c.compileElement(r.Element()); err != nil {
		return err
	}
	return c.EndRule()
}

func (c *Compiler) compileElement(e grammar.Element) error {
	switch e := e.(type) {
	case *grammar.Sequence:
		return c.compileRun(e.Children(), c.StartSequence, c.EndSequence)
	case *grammar.Alternative:
		return c.compileRun(e.Children(), c.StartAlternative, c.EndAlternative)
	case *grammar.Optional:
		if err := c.StartOptional(); err != nil {
			return err
		}
		if err := c.compileElement(e.Children()[0]); err != nil {
			return err
		}
		return c.EndOptional()
	case *grammar.Repetition:
		return c.compileRepetition(e)
	case *grammar.Literal:
		return c.compileWords(e.Words())
	case *grammar.RuleRef:
		target := e.Rule()
		if target == nil {
			return errors.New("rule reference without a target")
		}
		return c.AddRuleRef(target.Name(), target.Imported())
	case *grammar.ListRef:
		return c.AddList(e.List().Name())
	case *grammar.DictListRef:
		return c.AddList(e.Dict().Name())
	case *grammar.Dictation:
		return c.AddRuleRef(grammar.DictationRuleName, true)
	case *grammar.Impossible:
		return c.AddList(emptyListName)
	case *grammar.Empty:
		return nil
	default:
		return fmt.Errorf("no compiler for element %T", e)
	}
}

// compileRun wraps multiple children in a region; a single child is
// inlined and an empty run contributes nothing.
func (c *Compiler) compileRun(children []grammar.Element, start, end func() error) error {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return c.compileElement(children[0])
	}
	if err := start(); err != nil {
		return err
	}
	for _, child := range children {
		if err := c.compileElement(child); err != nil {
			return err
		}
	}
	return end()
}

func (c *Compiler) compileWords(words []string) error {
	switch len(words) {
	case 0:
		return nil
	case 1:
		return c.AddWord(words[0])
	}
	if err := c.StartSequence(); err != nil {
		return err
	}
	for _, w := range words {
		if err := c.AddWord(w); err != nil {
			return err
		}
	}
	return c.EndSequence()
}

// compileRepetition emits a repetition region, meaning one-or-more, for
// the optimized form; min=0 wraps it in an optional region and min/max
// stay decode-enforced. The non-optimized form unrolls to min sequenced
// copies followed by a nested optional chain up to max.
func (c *Compiler) compileRepetition(e *grammar.Repetition) error {
	child := e.Children()[0]
	if e.Optimize() {
		if e.Min() == 0 {
			if err := c.StartOptional(); err != nil {
				return err
			}
		}
		if err := c.StartRepetition(); err != nil {
			return err
		}
		if err := c.compileElement(child); err != nil {
			return err
		}
		if err := c.EndRepetition(); err != nil {
			return err
		}
		if e.Min() == 0 {
			return c.EndOptional()
		}
		return nil
	}
	return c.compileUnrolled(child, e.Min(), e.Max()-e.Min())
}

func (c *Compiler) compileUnrolled(child grammar.Element, mandatory, extra int) error {
	top := mandatory
	if extra > 0 {
		top++
	}
	if top > 1 {
		if err := c.StartSequence(); err != nil {
			return err
		}
	}
	for i := 0; i < mandatory; i++ {
		if err := c.compileElement(child); err != nil {
			return err
		}
	}
	if extra > 0 {
		if err := c.compileOptionalChain(child, extra); err != nil {
			return err
		}
	}
	if top > 1 {
		return c.EndSequence()
	}
	return nil
}

// compileOptionalChain nests depth optional copies so each additional
// occurrence is only reachable after the previous one.
func (c *Compiler) compileOptionalChain(child grammar.Element, depth int) error {
	if err := c.StartOptional(); err != nil {
		return err
	}
	if depth > 1 {
		if err := c.StartSequence(); err != nil {
			return err
		}
	}
	if err := c.compileElement(child); err != nil {
		return err
	}
	if depth > 1 {
		if err := c.compileOptionalChain(child, depth-1); err != nil {
			return err
		}
		if err := c.EndSequence(); err != nil {
			return err
		}
	}
	return c.EndOptional()
}
