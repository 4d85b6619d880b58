package grammar

import (
	"fmt"
	"strings"
)

// Node is one parse-tree node tying an element to the token span it
// matched. Trees are built bottom-up from the decode frame stack after a
// successful full decode.
type Node struct {
	parent   *Node
	element  Element
	tokens   []Token
	begin    int
	end      int
	depth    int
	children []*Node
}

func newNode(parent *Node, element Element, tokens []Token, begin, end, depth int) *Node {
	n := &Node{
		parent:  parent,
		element: element,
		tokens:  tokens,
		begin:   begin,
		end:     end,
		depth:   depth,
	}
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

// Element returns the element this node matched.
func (n *Node) Element() Element { return n.element }

// Parent returns the enclosing node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in matched order.
func (n *Node) Children() []*Node { return n.children }

// Begin returns the index of the first token covered by this node.
func (n *Node) Begin() int { return n.begin }

// End returns the index one past the last token covered by this node.
func (n *Node) End() int { return n.end }

// Words returns the words of the tokens covered by this node.
func (n *Node) Words() []string {
	words := make([]string, 0, n.end-n.begin)
	for _, t := range n.tokens[n.begin:n.end] {
		words = append(words, t.Word)
	}
	return words
}

// Value extracts this node's semantic value via its element.
func (n *Node) Value() any { return n.element.Value(n) }

// Name returns the binding name of this node's element.
func (n *Node) Name() string { return n.element.Name() }

// ChildByName returns the first descendant whose element carries the given
// binding name, searching depth-first in matched order, or nil. With
// shallow set, the search does not descend below other named nodes.
func (n *Node) ChildByName(name string, shallow bool) *Node {
	for _, child := range n.children {
		if childName := child.Name(); childName != "" {
			if childName == name {
				return child
			}
			if shallow {
				continue
			}
		}
		if match := child.ChildByName(name, shallow); match != nil {
			return match
		}
	}
	return nil
}

// ChildrenByName returns every matching descendant under the same search
// rules as ChildByName.
func (n *Node) ChildrenByName(name string, shallow bool) []*Node {
	var matches []*Node
	for _, child := range n.children {
		if childName := child.Name(); childName != "" {
			if childName == name {
				matches = append(matches, child)
			}
			if shallow {
				continue
			}
		}
		matches = append(matches, child.ChildrenByName(name, shallow)...)
	}
	return matches
}

// HasChildByName reports whether ChildByName would find a node.
func (n *Node) HasChildByName(name string, shallow bool) bool {
	return n.ChildByName(name, shallow) != nil
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(%s, %q)", n.element, strings.Join(n.Words(), " "))
}
