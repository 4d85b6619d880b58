package grammar

import (
	"fmt"
	"strings"
)

// matcher enumerates one element's match candidates against a State. Each
// next call either parks a successful span on the state (returning true)
// or unwinds the element's frame entirely (returning false). After a true
// result the caller may call next again for the following candidate, or
// close to abandon the enumeration with the same unwinding a failure
// would perform.
type matcher interface {
	next() bool
	close()
}

// newMatcher builds the matcher for an element. The switch is exhaustive
// over the closed variant set.
func newMatcher(e Element, s *State) matcher {
	switch e := e.(type) {
	case *Sequence:
		return &seriesMatcher{s: s, owner: e, children: e.children}
	case *Alternative:
		return &alternativeMatcher{s: s, owner: e, children: e.children}
	case *Optional:
		return &optionalMatcher{s: s, owner: e}
	case *Repetition:
		return &repetitionMatcher{s: s, owner: e}
	case *Literal:
		return &wordsMatcher{s: s, owner: e, words: e.words}
	case *RuleRef:
		return &ruleRefMatcher{s: s, owner: e}
	case *ListRef:
		return &listMatcher{s: s, owner: e, items: e.list.ListItems()}
	case *DictListRef:
		return &listMatcher{s: s, owner: e, items: e.dict.ListItems()}
	case *Dictation:
		return &dictationMatcher{s: s, owner: e}
	case *Impossible:
		return &impossibleMatcher{s: s, owner: e}
	case *Empty:
		return &emptyMatcher{s: s, owner: e}
	default:
		panic(fmt.Sprintf("grammar: no decoder for element %T", e))
	}
}

const (
	phaseNew = iota
	phaseRunning
	phaseEmpty
	phaseDone
)

// wordsMatcher matches a fixed word run case-insensitively. It offers a
// single candidate.
type wordsMatcher struct {
	s     *State
	owner Element
	words []string
	phase int
}

func (m *wordsMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		if m.match() {
			m.s.decodeSuccess(m.owner)
			m.phase = phaseRunning
			return true
		}
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	default:
		return false
	}
}

func (m *wordsMatcher) match() bool {
	if m.s.remaining() < len(m.words) {
		return false
	}
	for i, w := range m.words {
		if !strings.EqualFold(m.s.word(i), w) {
			return false
		}
	}
	m.s.advance(len(m.words))
	return true
}

func (m *wordsMatcher) close() { closeSimple(m.s, m.owner, &m.phase) }

// emptyMatcher matches the empty span exactly once.
type emptyMatcher struct {
	s     *State
	owner Element
	phase int
}

func (m *emptyMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		m.s.decodeSuccess(m.owner)
		m.phase = phaseRunning
		return true
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	default:
		return false
	}
}

func (m *emptyMatcher) close() { closeSimple(m.s, m.owner, &m.phase) }

// impossibleMatcher fails immediately.
type impossibleMatcher struct {
	s     *State
	owner Element
	phase int
}

func (m *impossibleMatcher) next() bool {
	if m.phase != phaseNew {
		return false
	}
	m.s.decodeAttempt(m.owner)
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
	return false
}

func (m *impossibleMatcher) close() { m.phase = phaseDone }

// seriesMatcher matches children strictly left to right, maintaining one
// live matcher per committed child and backtracking through them when a
// later child fails.
type seriesMatcher struct {
	s        *State
	owner    Element
	children []Element
	path     []matcher
	phase    int
}

func (m *seriesMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		if len(m.children) == 0 {
			m.s.decodeSuccess(m.owner)
			m.phase = phaseEmpty
			return true
		}
		m.path = []matcher{newMatcher(m.children[0], m.s)}
		m.phase = phaseRunning
		return m.run()
	case phaseEmpty:
		m.s.decodeRetry(m.owner)
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		return m.run()
	default:
		return false
	}
}

func (m *seriesMatcher) run() bool {
	for len(m.path) > 0 {
		last := m.path[len(m.path)-1]
		if !last.next() {
			m.path = m.path[:len(m.path)-1]
			continue
		}
		if len(m.path) < len(m.children) {
			m.path = append(m.path, newMatcher(m.children[len(m.path)], m.s))
			continue
		}
		m.s.decodeSuccess(m.owner)
		return true
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
	return false
}

func (m *seriesMatcher) close() {
	if m.phase == phaseDone || m.phase == phaseNew {
		m.phase = phaseDone
		return
	}
	m.s.decodeRetry(m.owner)
	for i := len(m.path) - 1; i >= 0; i-- {
		m.path[i].close()
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
}

// alternativeMatcher tries children in declaration order, exhausting each
// child's candidates before moving to the next.
type alternativeMatcher struct {
	s        *State
	owner    Element
	children []Element
	idx      int
	cur      matcher
	phase    int
}

func (m *alternativeMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		if len(m.children) == 0 {
			m.s.decodeFailure(m.owner)
			m.phase = phaseDone
			return false
		}
		m.cur = newMatcher(m.children[0], m.s)
		m.phase = phaseRunning
		return m.run()
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		return m.run()
	default:
		return false
	}
}

func (m *alternativeMatcher) run() bool {
	for {
		if m.cur.next() {
			m.s.decodeSuccess(m.owner)
			return true
		}
		m.s.decodeRollback(m.owner)
		m.idx++
		if m.idx >= len(m.children) {
			m.s.decodeFailure(m.owner)
			m.phase = phaseDone
			return false
		}
		m.cur = newMatcher(m.children[m.idx], m.s)
	}
}

func (m *alternativeMatcher) close() {
	if m.phase == phaseDone || m.phase == phaseNew {
		m.phase = phaseDone
		return
	}
	m.s.decodeRetry(m.owner)
	m.cur.close()
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
}

// optionalMatcher offers the child's candidates first, then one empty
// match at the opening cursor.
type optionalMatcher struct {
	s     *State
	owner *Optional
	cur   matcher
	phase int
}

func (m *optionalMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		m.cur = newMatcher(m.owner.child, m.s)
		m.phase = phaseRunning
		return m.run()
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		return m.run()
	case phaseEmpty:
		m.s.decodeRetry(m.owner)
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	default:
		return false
	}
}

func (m *optionalMatcher) run() bool {
	if m.cur.next() {
		m.s.decodeSuccess(m.owner)
		return true
	}
	// Child exhausted: its failure restored the cursor, so the empty
	// match spans zero tokens at the opening position.
	m.s.decodeSuccess(m.owner)
	m.phase = phaseEmpty
	return true
}

func (m *optionalMatcher) close() {
	switch m.phase {
	case phaseDone, phaseNew:
		m.phase = phaseDone
	case phaseEmpty:
		m.s.decodeRetry(m.owner)
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
	default:
		m.s.decodeRetry(m.owner)
		m.cur.close()
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
	}
}

// repetitionMatcher matches its child greedily up to the maximum count,
// then backs the count off one at a time toward the minimum. Each backoff
// step first lets the deepest committed iteration offer an alternative
// candidate, regrowing greedily on top of it.
type repetitionMatcher struct {
	s     *State
	owner *Repetition
	path  []matcher
	phase int
}

func (m *repetitionMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		m.phase = phaseRunning
		m.extend()
		if len(m.path) >= m.owner.min {
			m.s.decodeSuccess(m.owner)
			return true
		}
		return m.backoff()
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		return m.backoff()
	default:
		return false
	}
}

// extend adds child iterations while the child matches and the count is
// below the maximum.
func (m *repetitionMatcher) extend() {
	for len(m.path) < m.owner.max {
		c := newMatcher(m.owner.child, m.s)
		if !c.next() {
			return
		}
		m.path = append(m.path, c)
	}
}

func (m *repetitionMatcher) backoff() bool {
	for len(m.path) > 0 {
		last := m.path[len(m.path)-1]
		if last.next() {
			m.extend()
			if len(m.path) >= m.owner.min {
				m.s.decodeSuccess(m.owner)
				return true
			}
			continue
		}
		// A fresh matcher at this position would only re-enumerate the
		// candidates the exhausted one already offered, so dropping the
		// iteration is final.
		m.path = m.path[:len(m.path)-1]
		if len(m.path) >= m.owner.min {
			m.s.decodeSuccess(m.owner)
			return true
		}
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
	return false
}

func (m *repetitionMatcher) close() {
	if m.phase == phaseDone || m.phase == phaseNew {
		m.phase = phaseDone
		return
	}
	m.s.decodeRetry(m.owner)
	for i := len(m.path) - 1; i >= 0; i-- {
		m.path[i].close()
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
}

// ruleRefMatcher decodes the referenced rule's root element at the current
// cursor.
type ruleRefMatcher struct {
	s     *State
	owner *RuleRef
	inner matcher
	phase int
}

func (m *ruleRefMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		if m.owner.rule == nil || m.owner.rule.element == nil {
			m.s.decodeFailure(m.owner)
			m.phase = phaseDone
			return false
		}
		m.inner = newMatcher(m.owner.rule.element, m.s)
		m.phase = phaseRunning
		return m.run()
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		return m.run()
	default:
		return false
	}
}

func (m *ruleRefMatcher) run() bool {
	if m.inner.next() {
		m.s.decodeSuccess(m.owner)
		return true
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
	return false
}

func (m *ruleRefMatcher) close() {
	if m.phase == phaseDone || m.phase == phaseNew {
		m.phase = phaseDone
		return
	}
	m.s.decodeRetry(m.owner)
	m.inner.close()
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
}

// listMatcher matches one list item at the cursor, offering items in list
// order.
type listMatcher struct {
	s     *State
	owner Element
	items []string
	idx   int
	phase int
}

func (m *listMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		m.phase = phaseRunning
		return m.scan()
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		m.s.decodeRollback(m.owner)
		m.idx++
		return m.scan()
	default:
		return false
	}
}

func (m *listMatcher) scan() bool {
	for ; m.idx < len(m.items); m.idx++ {
		if m.matchItem(m.items[m.idx]) {
			m.s.decodeSuccess(m.owner)
			return true
		}
	}
	m.s.decodeFailure(m.owner)
	m.phase = phaseDone
	return false
}

func (m *listMatcher) matchItem(item string) bool {
	words := strings.Fields(item)
	if len(words) == 0 || m.s.remaining() < len(words) {
		return false
	}
	for i, w := range words {
		if !strings.EqualFold(m.s.word(i), w) {
			return false
		}
	}
	m.s.advance(len(words))
	return true
}

func (m *listMatcher) close() { closeSimple(m.s, m.owner, &m.phase) }

// dictationMatcher consumes the contiguous run of dictation-tagged tokens
// at the cursor, longest span first, shrinking on each retry.
type dictationMatcher struct {
	s     *State
	owner *Dictation
	count int
	phase int
}

func (m *dictationMatcher) next() bool {
	switch m.phase {
	case phaseNew:
		m.s.decodeAttempt(m.owner)
		m.count = m.available()
		if m.count < 1 {
			m.s.decodeFailure(m.owner)
			m.phase = phaseDone
			return false
		}
		m.s.advance(m.count)
		m.s.decodeSuccess(m.owner)
		m.phase = phaseRunning
		return true
	case phaseRunning:
		m.s.decodeRetry(m.owner)
		m.s.decodeRollback(m.owner)
		m.count--
		if m.count >= 1 {
			m.s.advance(m.count)
			m.s.decodeSuccess(m.owner)
			return true
		}
		m.s.decodeFailure(m.owner)
		m.phase = phaseDone
		return false
	default:
		return false
	}
}

func (m *dictationMatcher) available() int {
	count := 0
	for count < m.s.remaining() && m.s.ruleName(count) == DictationRuleName {
		count++
	}
	return count
}

func (m *dictationMatcher) close() { closeSimple(m.s, m.owner, &m.phase) }

// closeSimple unwinds a leaf matcher holding no child matchers.
func closeSimple(s *State, owner Element, phase *int) {
	if *phase == phaseDone || *phase == phaseNew {
		*phase = phaseDone
		return
	}
	s.decodeRetry(owner)
	s.decodeFailure(owner)
	*phase = phaseDone
}
