package grammar

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// ListBase is the contract shared by List and DictList: a named, mutable
// vocabulary with a stable identity key. Only this package implements it.
type ListBase interface {
	// ID returns the identity key dependency tracking is recorded under.
	ID() uuid.UUID
	// Name returns the list name, unique within its grammar.
	Name() string
	// ListItems returns the spoken forms compiled into the grammar, in
	// declaration order.
	ListItems() []string
	// Grammar returns the owning grammar, or nil before the list is added.
	Grammar() *Grammar

	bind(*Grammar) error
	unbind()
}

// listCore carries the fields shared by both list kinds.
type listCore struct {
	id      uuid.UUID
	name    string
	grammar *Grammar
}

func newListCore(name string) listCore {
	return listCore{id: uuid.New(), name: name}
}

func (c *listCore) ID() uuid.UUID { return c.id }

func (c *listCore) Name() string { return c.name }

func (c *listCore) Grammar() *Grammar { return c.grammar }

func (c *listCore) bind(g *Grammar) error {
	if c.grammar != nil && c.grammar != g {
		return fmt.Errorf("list %q already belongs to grammar %q", c.name, c.grammar.Name())
	}
	c.grammar = g
	return nil
}

func (c *listCore) unbind() { c.grammar = nil }

// notify pushes the list's current contents to the loaded grammar so only
// the rules depending on this list are recompiled.
func (c *listCore) notify(l ListBase) error {
	if c.grammar == nil {
		return nil
	}
	return c.grammar.UpdateList(l)
}

// List is an ordered, mutable vocabulary referenced by list elements.
type List struct {
	listCore
	items []string
}

// NewList builds a named list with optional initial items.
func NewList(name string, items ...string) *List {
	return &List{listCore: newListCore(name), items: slices.Clone(items)}
}

// ListItems returns a copy of the current items in order.
func (l *List) ListItems() []string { return slices.Clone(l.items) }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Contains reports whether the exact item is present.
func (l *List) Contains(item string) bool { return slices.Contains(l.items, item) }

// Append adds items to the end of the list and pushes the update.
func (l *List) Append(items ...string) error {
	l.items = append(l.items, items...)
	return l.notify(l)
}

// Remove deletes the first occurrence of the item and pushes the update.
func (l *List) Remove(item string) error {
	idx := slices.Index(l.items, item)
	if idx < 0 {
		return fmt.Errorf("item %q not in list %q", item, l.name)
	}
	l.items = slices.Delete(l.items, idx, idx+1)
	return l.notify(l)
}

// Set replaces the whole contents and pushes the update.
func (l *List) Set(items []string) error {
	l.items = slices.Clone(items)
	return l.notify(l)
}

// Clear removes every item and pushes the update.
func (l *List) Clear() error {
	l.items = nil
	return l.notify(l)
}

func (l *List) String() string {
	return fmt.Sprintf("List(%s, %d items)", l.name, len(l.items))
}

// DictList maps spoken forms to arbitrary values. The spoken forms are
// what gets compiled into the grammar; the values surface through
// DictListRef extraction.
type DictList struct {
	listCore
	keys   []string
	values map[string]any
}

// NewDictList builds a named, empty dictionary list.
func NewDictList(name string) *DictList {
	return &DictList{listCore: newListCore(name), values: make(map[string]any)}
}

// ListItems returns the spoken forms in insertion order.
func (d *DictList) ListItems() []string { return slices.Clone(d.keys) }

// Len returns the number of entries.
func (d *DictList) Len() int { return len(d.keys) }

// Get returns the value stored under the spoken form.
func (d *DictList) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Set stores a value under a spoken form and pushes the update.
func (d *DictList) Set(key string, value any) error {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return d.notify(d)
}

// Delete removes a spoken form and pushes the update.
func (d *DictList) Delete(key string) error {
	if _, ok := d.values[key]; !ok {
		return fmt.Errorf("key %q not in dict list %q", key, d.name)
	}
	delete(d.values, key)
	idx := slices.Index(d.keys, key)
	d.keys = slices.Delete(d.keys, idx, idx+1)
	return d.notify(d)
}

// Clear removes every entry and pushes the update.
func (d *DictList) Clear() error {
	d.keys = nil
	d.values = make(map[string]any)
	return d.notify(d)
}

func (d *DictList) String() string {
	return fmt.Sprintf("DictList(%s, %d entries)", d.name, len(d.keys))
}
