package grammar

import (
	"fmt"
	"strings"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/dictation"
)

// Element is one node of a grammar tree. The variant set is closed: every
// implementation lives in this package, and the compilers and the decoder
// dispatch over the concrete types with exhaustive switches.
type Element interface {
	// Children returns the owned child elements in declaration order.
	Children() []Element
	// Name returns the binding name used for parse-tree lookups, or "".
	Name() string
	// Default returns the value reported when a named element is absent.
	Default() (any, bool)
	// Weight returns the recognition likelihood bias (1 when unset).
	Weight() float64
	// Value extracts the element's semantic value from a decoded node.
	Value(n *Node) any

	fmt.Stringer

	isElement()
}

// meta holds the attributes shared by every element variant.
type meta struct {
	name     string
	def      any
	hasDef   bool
	value    any
	hasValue bool
	weight   float64
}

func newMeta(opts []Option) meta {
	m := meta{weight: 1}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m meta) Name() string { return m.name }

func (m meta) Default() (any, bool) { return m.def, m.hasDef }

func (m meta) Weight() float64 { return m.weight }

func (m meta) override() (any, bool) { return m.value, m.hasValue }

func (meta) isElement() {}

// Option configures the optional attributes shared by all element variants.
type Option func(*meta)

// Named sets the binding name elements are looked up by in a parse tree.
func Named(name string) Option {
	return func(m *meta) { m.name = name }
}

// WithDefault sets the value reported when the named element is absent
// from a recognition.
func WithDefault(v any) Option {
	return func(m *meta) { m.def = v; m.hasDef = true }
}

// WithValue overrides the value extracted on a successful match.
func WithValue(v any) Option {
	return func(m *meta) { m.value = v; m.hasValue = true }
}

// WithWeight biases recognition likelihood for backends that support
// weighted alternatives. Values outside (0, +inf) are coerced at compile
// time, not here.
func WithWeight(w float64) Option {
	return func(m *meta) { m.weight = w }
}

// Sequence matches its children one after another, in order.
type Sequence struct {
	meta
	children []Element
}

// NewSequence builds a sequence over the given children.
func NewSequence(children []Element, opts ...Option) *Sequence {
	return &Sequence{meta: newMeta(opts), children: children}
}

func (e *Sequence) Children() []Element { return e.children }

// Value returns the child node values in matched order.
func (e *Sequence) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	values := make([]any, 0, len(n.children))
	for _, child := range n.children {
		values = append(values, child.Value())
	}
	return values
}

func (e *Sequence) String() string { return describe("Sequence", e.meta, len(e.children)) }

// Alternative matches exactly one of its children, preferring the earliest
// declared child able to match.
type Alternative struct {
	meta
	children []Element
}

// NewAlternative builds an alternative over the given children.
func NewAlternative(children []Element, opts ...Option) *Alternative {
	return &Alternative{meta: newMeta(opts), children: children}
}

func (e *Alternative) Children() []Element { return e.children }

// Value returns the matched child's value.
func (e *Alternative) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0].Value()
}

func (e *Alternative) String() string { return describe("Alternative", e.meta, len(e.children)) }

// Optional matches its child if possible, else an empty span. Presence is
// preferred over absence.
type Optional struct {
	meta
	child Element
}

// NewOptional wraps a child element so its absence is not a failure.
func NewOptional(child Element, opts ...Option) *Optional {
	return &Optional{meta: newMeta(opts), child: child}
}

func (e *Optional) Children() []Element { return []Element{e.child} }

// Value returns the child's value when present, else the default.
func (e *Optional) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	if len(n.children) > 0 {
		return n.children[0].Value()
	}
	def, _ := e.Default()
	return def
}

func (e *Optional) String() string { return describe("Optional", e.meta, 1) }

// Repetition matches its child between min and max times inclusive,
// greedily. The optimize flag lets the automaton compiler emit a compact
// back-arc loop instead of unrolled copies when the child cannot match
// zero tokens.
type Repetition struct {
	meta
	child    Element
	min, max int
	optimize bool
}

// NewRepetition builds a repetition of child with inclusive bounds.
// It panics when the bounds are not 0 <= min <= max with max >= 1.
func NewRepetition(child Element, min, max int, optimize bool, opts ...Option) *Repetition {
	if min < 0 || max < min || max < 1 {
		panic(fmt.Sprintf("grammar: invalid repetition bounds [%d, %d]", min, max))
	}
	return &Repetition{meta: newMeta(opts), child: child, min: min, max: max, optimize: optimize}
}

func (e *Repetition) Children() []Element { return []Element{e.child} }

// Min returns the minimum repeat count.
func (e *Repetition) Min() int { return e.min }

// Max returns the maximum repeat count, inclusive.
func (e *Repetition) Max() int { return e.max }

// Optimize reports whether compact loop compilation may be attempted.
func (e *Repetition) Optimize() bool { return e.optimize }

// Value returns one value per matched repetition of the child.
func (e *Repetition) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	values := make([]any, 0, len(n.children))
	for _, child := range n.children {
		values = append(values, child.Value())
	}
	return values
}

func (e *Repetition) String() string {
	return fmt.Sprintf("Repetition(%smin=%d, max=%d)", namePrefix(e.meta), e.min, e.max)
}

// Literal matches a fixed run of words, case-insensitively.
type Literal struct {
	meta
	words []string
}

// NewLiteral builds a literal from whitespace-separated words.
func NewLiteral(text string, opts ...Option) *Literal {
	return &Literal{meta: newMeta(opts), words: strings.Fields(text)}
}

func (e *Literal) Children() []Element { return nil }

// Words returns the words matched by this literal, in order.
func (e *Literal) Words() []string { return e.words }

// Value returns the matched words joined by spaces, or the override set
// with WithValue.
func (e *Literal) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	return strings.Join(n.Words(), " ")
}

func (e *Literal) String() string {
	return fmt.Sprintf("Literal(%q%s)", strings.Join(e.words, " "), nameTail(e.meta))
}

// RuleRef matches the root element of another rule at the current cursor.
type RuleRef struct {
	meta
	rule *Rule
}

// NewRuleRef builds a reference to the given rule.
func NewRuleRef(rule *Rule, opts ...Option) *RuleRef {
	return &RuleRef{meta: newMeta(opts), rule: rule}
}

func (e *RuleRef) Children() []Element { return nil }

// Rule returns the referenced rule.
func (e *RuleRef) Rule() *Rule { return e.rule }

// Value returns the referenced rule's matched value.
func (e *RuleRef) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0].Value()
}

func (e *RuleRef) String() string {
	name := "<nil>"
	if e.rule != nil {
		name = e.rule.Name()
	}
	return fmt.Sprintf("RuleRef(%s%s)", name, nameTail(e.meta))
}

// ListRef matches any current item of a list, in list order.
type ListRef struct {
	meta
	list *List
}

// NewListRef builds a reference to the given list.
func NewListRef(list *List, opts ...Option) *ListRef {
	return &ListRef{meta: newMeta(opts), list: list}
}

func (e *ListRef) Children() []Element { return nil }

// List returns the referenced list.
func (e *ListRef) List() *List { return e.list }

// Value returns the matched item text.
func (e *ListRef) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	return strings.Join(n.Words(), " ")
}

func (e *ListRef) String() string {
	return fmt.Sprintf("ListRef(%s%s)", e.list.Name(), nameTail(e.meta))
}

// DictListRef matches any current key of a dictionary list and extracts
// the value stored under the matched key.
type DictListRef struct {
	meta
	dict *DictList
}

// NewDictListRef builds a reference to the given dictionary list.
func NewDictListRef(dict *DictList, opts ...Option) *DictListRef {
	return &DictListRef{meta: newMeta(opts), dict: dict}
}

func (e *DictListRef) Children() []Element { return nil }

// Dict returns the referenced dictionary list.
func (e *DictListRef) Dict() *DictList { return e.dict }

// Value returns the value stored under the matched key.
func (e *DictListRef) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	v, _ := e.dict.Get(strings.Join(n.Words(), " "))
	return v
}

func (e *DictListRef) String() string {
	return fmt.Sprintf("DictListRef(%s%s)", e.dict.Name(), nameTail(e.meta))
}

// Dictation matches a variable-length run of free-dictation tokens,
// longest first.
type Dictation struct {
	meta
	cloud bool
}

// NewDictation builds a free-dictation element. With cloud set, the
// automaton compiler routes the span to the out-of-process dictation
// nonterminal instead of the local one.
func NewDictation(cloud bool, opts ...Option) *Dictation {
	return &Dictation{meta: newMeta(opts), cloud: cloud}
}

func (e *Dictation) Children() []Element { return nil }

// Cloud reports whether the span is routed to out-of-process dictation.
func (e *Dictation) Cloud() bool { return e.cloud }

// Value returns the dictated words formatted as display text.
func (e *Dictation) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	return dictation.Format(n.Words())
}

func (e *Dictation) String() string {
	if e.cloud {
		return fmt.Sprintf("Dictation(cloud%s)", nameTail(e.meta))
	}
	return fmt.Sprintf("Dictation(%s)", nameSuffix(e.meta))
}

// Impossible never matches. Compilers emit a placeholder arc for it so
// surrounding structure stays well-formed.
type Impossible struct {
	meta
}

// NewImpossible builds an element that can never be recognized.
func NewImpossible(opts ...Option) *Impossible {
	return &Impossible{meta: newMeta(opts)}
}

func (e *Impossible) Children() []Element { return nil }

func (e *Impossible) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	return nil
}

func (e *Impossible) String() string { return fmt.Sprintf("Impossible(%s)", nameSuffix(e.meta)) }

// Empty always matches without consuming tokens.
type Empty struct {
	meta
}

// NewEmpty builds an element matching the empty span. Its value is true
// unless overridden, so presence tests read naturally.
func NewEmpty(opts ...Option) *Empty {
	return &Empty{meta: newMeta(opts)}
}

func (e *Empty) Children() []Element { return nil }

func (e *Empty) Value(n *Node) any {
	if v, ok := e.override(); ok {
		return v
	}
	return true
}

func (e *Empty) String() string { return fmt.Sprintf("Empty(%s)", nameSuffix(e.meta)) }

// Dependencies collects the rules and lists referenced anywhere beneath
// the given element, depth-first, each reported once.
func Dependencies(e Element) (rules []*Rule, lists []ListBase) {
	seenRules := make(map[*Rule]bool)
	seenLists := make(map[ListBase]bool)
	var walk func(Element)
	walk = func(e Element) {
		switch e := e.(type) {
		case *RuleRef:
			if e.rule == nil || seenRules[e.rule] {
				return
			}
			seenRules[e.rule] = true
			rules = append(rules, e.rule)
			if e.rule.element != nil {
				walk(e.rule.element)
			}
			return
		case *ListRef:
			if e.list == nil || seenLists[e.list] {
				return
			}
			seenLists[e.list] = true
			lists = append(lists, e.list)
			return
		case *DictListRef:
			if e.dict == nil || seenLists[e.dict] {
				return
			}
			seenLists[e.dict] = true
			lists = append(lists, e.dict)
			return
		}
		for _, child := range e.Children() {
			walk(child)
		}
	}
	walk(e)
	return rules, lists
}

func describe(kind string, m meta, children int) string {
	return fmt.Sprintf("%s(%s%d children)", kind, namePrefix(m), children)
}

func namePrefix(m meta) string {
	if m.name == "" {
		return ""
	}
	return fmt.Sprintf("name=%q, ", m.name)
}

func nameSuffix(m meta) string {
	if m.name == "" {
		return ""
	}
	return fmt.Sprintf("name=%q", m.name)
}

func nameTail(m meta) string {
	if m.name == "" {
		return ""
	}
	return fmt.Sprintf(", name=%q", m.name)
}
