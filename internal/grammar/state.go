package grammar

import (
	"log/slog"
)

// Token is one word of a flat recognition result, tagged with the id of
// the rule that produced it.
type Token struct {
	Word   string
	RuleID int
}

// Reserved rule ids marking tokens produced by free dictation or spelling
// rather than by a grammar rule.
const (
	DictationRuleID = 1000000
	SpellingRuleID  = 1000001
)

// Names reported for the reserved rule ids.
const (
	DictationRuleName = "dgndictation"
	SpellingRuleName  = "dgnletters"
)

// State tracks one decode attempt over a token sequence: the cursor plus
// the explicit frame stack recording element entry and exit. Frames pushed
// by successful matches are retained so the parse tree can be folded out
// of the stack afterwards.
type State struct {
	tokens    []Token
	ruleNames []string
	index     int
	depth     int
	stack     []*frame
	logger    *slog.Logger
}

// frame is one entry of the decode stack.
type frame struct {
	depth   int
	element Element
	begin   int
	end     int
}

const frameOpen = -1

// NewState builds a decode state over a token sequence. ruleNames maps
// rule ids to names, 1-based with index 0 unused; it may be nil when the
// result carries only reserved ids.
func NewState(tokens []Token, ruleNames []string) *State {
	return &State{tokens: tokens, ruleNames: ruleNames}
}

// SetLogger enables DEBUG-level decode tracing.
func (s *State) SetLogger(logger *slog.Logger) { s.logger = logger }

// Tokens returns the token sequence under decode.
func (s *State) Tokens() []Token { return s.tokens }

// Index returns the current cursor position.
func (s *State) Index() int { return s.index }

// Finished reports whether the cursor has consumed every token.
func (s *State) Finished() bool { return s.index >= len(s.tokens) }

// remaining returns the number of tokens at and after the cursor.
func (s *State) remaining() int { return len(s.tokens) - s.index }

// word returns the word at the given offset from the cursor.
func (s *State) word(delta int) string { return s.tokens[s.index+delta].Word }

// ruleName resolves the rule id of the token at the given offset from the
// cursor, mapping reserved ids to their fixed names.
func (s *State) ruleName(delta int) string {
	id := s.tokens[s.index+delta].RuleID
	switch id {
	case DictationRuleID:
		return DictationRuleName
	case SpellingRuleID:
		return SpellingRuleName
	}
	if id < 0 || id >= len(s.ruleNames) {
		return ""
	}
	return s.ruleNames[id]
}

// advance moves the cursor forward over matched tokens.
func (s *State) advance(count int) { s.index += count }

// decodeAttempt records entry into an element: one frame is pushed at the
// next depth, opening at the current cursor.
func (s *State) decodeAttempt(e Element) {
	s.depth++
	s.stack = append(s.stack, &frame{depth: s.depth, element: e, begin: s.index, end: frameOpen})
	s.trace("attempt", e)
}

// decodeRetry re-enters an element that previously succeeded so it can
// offer its next candidate. The depth rewinds to the element's frame; the
// cursor is left where the upstream failure put it.
func (s *State) decodeRetry(e Element) {
	f := s.frameForElement(e)
	s.depth = f.depth
	s.trace("retry", e)
}

// decodeRollback rewinds the cursor to an element's opening position while
// keeping its frame. The element's frame must be on top of the stack.
func (s *State) decodeRollback(e Element) {
	f := s.frameForDepth()
	if f != s.stack[len(s.stack)-1] || f.element != e {
		panic("grammar: decode stack broken")
	}
	s.index = f.begin
	s.trace("rollback", e)
}

// decodeSuccess closes an element's frame at the current cursor, keeping
// it on the stack for parse-tree construction.
func (s *State) decodeSuccess(e Element) {
	f := s.frameForDepth()
	if f.element != e {
		panic("grammar: decode stack broken")
	}
	f.end = s.index
	s.depth--
	s.trace("success", e)
}

// decodeFailure abandons an element: its frame is popped and the cursor
// restored to where the element began.
func (s *State) decodeFailure(e Element) {
	f := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.index = f.begin
	s.depth = f.depth - 1
	s.trace("failure", e)
}

// frameForElement returns the topmost frame recording the given element.
func (s *State) frameForElement(e Element) *frame {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].element == e {
			return s.stack[i]
		}
	}
	panic("grammar: decode stack broken")
}

// frameForDepth returns the topmost frame at the current depth.
func (s *State) frameForDepth() *frame {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].depth == s.depth {
			return s.stack[i]
		}
	}
	panic("grammar: decode stack broken")
}

// BuildParseTree folds the retained frame stack into a node hierarchy:
// each frame becomes a child of the nearest earlier frame with a smaller
// depth. Valid only while a successful candidate is parked on the state.
func (s *State) BuildParseTree() *Node {
	var root, node *Node
	for _, f := range s.stack {
		for node != nil && node.depth >= f.depth {
			node = node.parent
		}
		node = newNode(node, f.element, s.tokens, f.begin, f.end, f.depth)
		if node.parent == nil {
			root = node
		}
	}
	return root
}

func (s *State) trace(step string, e Element) {
	if s.logger == nil {
		return
	}
	s.logger.Debug("decode step",
		"step", step,
		"element", e.String(),
		"index", s.index,
		"depth", s.depth,
	)
}
