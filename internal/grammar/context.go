package grammar

import (
	"fmt"
	"strings"
)

// Window identifies the foreground window a recognition arrives in.
type Window struct {
	Executable string
	Title      string
	Handle     int
}

// Context is a predicate over the foreground window, gating rule and
// grammar activation.
type Context interface {
	Matches(w Window) bool
}

// AppContext matches windows of a particular application by
// case-insensitive substring on the executable and, optionally, the title.
type AppContext struct {
	executable string
	title      string
}

// NewAppContext builds a context matching the given executable substring.
// A non-empty title further requires a title substring match.
func NewAppContext(executable, title string) *AppContext {
	return &AppContext{
		executable: strings.ToLower(executable),
		title:      strings.ToLower(title),
	}
}

func (c *AppContext) Matches(w Window) bool {
	if c.executable != "" && !strings.Contains(strings.ToLower(w.Executable), c.executable) {
		return false
	}
	if c.title != "" && !strings.Contains(strings.ToLower(w.Title), c.title) {
		return false
	}
	return true
}

func (c *AppContext) String() string {
	return fmt.Sprintf("AppContext(executable=%q, title=%q)", c.executable, c.title)
}

type andContext []Context

// And matches when every given context matches.
func And(contexts ...Context) Context { return andContext(contexts) }

func (c andContext) Matches(w Window) bool {
	for _, sub := range c {
		if !sub.Matches(w) {
			return false
		}
	}
	return true
}

type orContext []Context

// Or matches when at least one given context matches.
func Or(contexts ...Context) Context { return orContext(contexts) }

func (c orContext) Matches(w Window) bool {
	for _, sub := range c {
		if sub.Matches(w) {
			return true
		}
	}
	return false
}

type notContext struct {
	inner Context
}

// Not inverts a context.
func Not(c Context) Context { return notContext{inner: c} }

func (c notContext) Matches(w Window) bool { return !c.inner.Matches(w) }
