package grammar

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Rule names one root element and tracks its activation state within a
// grammar.
type Rule struct {
	name     string
	element  Element
	context  Context
	exported bool
	imported bool
	grammar  *Grammar
	enabled  bool
	active   bool
	handler  func(*Node)
}

// RuleOption configures a rule at construction.
type RuleOption func(*Rule)

// Exported marks the rule as a recognizable top-level command.
func Exported() RuleOption {
	return func(r *Rule) { r.exported = true }
}

// Imported marks the rule as defined by the backend rather than this
// grammar.
func Imported() RuleOption {
	return func(r *Rule) { r.imported = true }
}

// RuleContext restricts activation to windows matched by the context.
func RuleContext(c Context) RuleOption {
	return func(r *Rule) { r.context = c }
}

// OnRecognition sets the callback dispatched with the parse-tree root
// after this rule decodes a recognition.
func OnRecognition(handler func(*Node)) RuleOption {
	return func(r *Rule) { r.handler = handler }
}

// NewRule builds a rule over the given root element. An empty name is
// replaced with a unique anonymous one.
func NewRule(name string, element Element, opts ...RuleOption) *Rule {
	if name == "" {
		name = "_anon_" + uuid.NewString()[:8]
	}
	r := &Rule{name: name, element: element, enabled: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the rule name, unique within its grammar.
func (r *Rule) Name() string { return r.name }

// Element returns the root element, or nil for a rule not yet given one.
func (r *Rule) Element() Element { return r.element }

// Exported reports whether the rule is a recognizable top-level command.
func (r *Rule) Exported() bool { return r.exported }

// Imported reports whether the rule is defined by the backend.
func (r *Rule) Imported() bool { return r.imported }

// Grammar returns the owning grammar, or nil before the rule is added.
func (r *Rule) Grammar() *Grammar { return r.grammar }

// Context returns the activation context, or nil for always-active.
func (r *Rule) Context() Context { return r.context }

// Enabled reports whether the rule may be activated at all.
func (r *Rule) Enabled() bool { return r.enabled }

// Active reports whether the rule is currently recognizable.
func (r *Rule) Active() bool { return r.active }

// Enable allows the rule to be activated on the next context update.
func (r *Rule) Enable() { r.enabled = true }

// Disable deactivates the rule and keeps it inactive until re-enabled.
func (r *Rule) Disable() {
	r.enabled = false
	r.deactivate()
}

// ProcessBegin applies the rule's context to the given foreground window,
// toggling activation accordingly.
func (r *Rule) ProcessBegin(w Window) {
	switch {
	case !r.enabled:
		r.deactivate()
	case r.context == nil || r.context.Matches(w):
		r.activate()
	default:
		r.deactivate()
	}
}

func (r *Rule) activate() {
	if r.active {
		return
	}
	r.active = true
	if r.exported && r.grammar != nil && r.grammar.loaded && r.grammar.engine != nil {
		if err := r.grammar.engine.ActivateRule(r, r.grammar); err != nil {
			r.grammar.logger().Error("activate rule", "rule", r.name, "error", err)
		}
	}
}

func (r *Rule) deactivate() {
	if !r.active {
		return
	}
	r.active = false
	if r.exported && r.grammar != nil && r.grammar.loaded && r.grammar.engine != nil {
		if err := r.grammar.engine.DeactivateRule(r, r.grammar); err != nil {
			r.grammar.logger().Error("deactivate rule", "rule", r.name, "error", err)
		}
	}
}

// ProcessRecognition dispatches a successful decode of this rule to the
// recognition handler, if one is set.
func (r *Rule) ProcessRecognition(root *Node) {
	if r.handler != nil {
		r.handler(root)
		return
	}
	r.log().Debug("recognition without handler", "rule", r.name)
}

// Decode begins candidate enumeration of this rule's root element over
// the given state.
func (r *Rule) Decode(s *State) *Decoding {
	if r.element == nil {
		return &Decoding{}
	}
	return &Decoding{s: s, m: newMatcher(r.element, s)}
}

func (r *Rule) log() *slog.Logger {
	if r.grammar != nil {
		return r.grammar.logger()
	}
	return slog.Default()
}

func (r *Rule) String() string {
	return fmt.Sprintf("Rule(%s, exported=%t)", r.name, r.exported)
}

// Decoding drives one rule's match candidates over a state. Each Next that
// returns true leaves a candidate parked on the state for inspection via
// Finished and BuildParseTree.
type Decoding struct {
	s      *State
	m      matcher
	parked bool
	done   bool
}

// Next advances to the rule's next match candidate. It returns false once
// candidates are exhausted; the state is then fully unwound.
func (d *Decoding) Next() bool {
	if d.done || d.m == nil {
		return false
	}
	d.parked = d.m.next()
	if !d.parked {
		d.done = true
	}
	return d.parked
}

// Close abandons the enumeration, unwinding any parked candidate exactly
// as a failure would so no decode frames leak.
func (d *Decoding) Close() {
	if d.done || d.m == nil {
		return
	}
	d.m.close()
	d.done = true
	d.parked = false
}
