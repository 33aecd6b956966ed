package rpc

import (
	"fmt"
	"path"
	"strings"
	"sync"
)

type Handler interface {
	RespondRPC(Responder, *Call)
}

type HandlerFunc func(Responder, *Call)

func (f HandlerFunc) RespondRPC(resp Responder, call *Call) {
	f(resp, call)
}

// NotFoundHandler returns an error for every call.
func NotFoundHandler() Handler {
	return HandlerFunc(func(r Responder, c *Call) {
		r.Return(fmt.Errorf("rpc: no handler for %q", c.Selector))
	})
}

// RespondMux routes calls by selector. Patterns ending in a slash match
// every selector below them, and the handler sees the selector with the
// pattern removed. The longest pattern wins. "/" matches everything.
type RespondMux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRespondMux() *RespondMux {
	return &RespondMux{
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for pattern. Dots in patterns and selectors are
// treated as slashes, so "calc.Add" and "calc/Add" are the same.
func (m *RespondMux) Handle(pattern string, h Handler) {
	if h == nil {
		panic("rpc: nil handler")
	}
	p := cleanSelector(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[p]; exists {
		panic("rpc: multiple registrations for " + p)
	}
	m.handlers[p] = h
}

// Remove unregisters the handler for pattern and returns it.
func (m *RespondMux) Remove(pattern string) Handler {
	p := cleanSelector(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.handlers[p]
	delete(m.handlers, p)
	return h
}

// Match returns the handler for selector and the pattern it was
// registered with.
func (m *RespondMux) Match(selector string) (Handler, string) {
	selector = cleanSelector(selector)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.handlers[selector]; ok {
		return h, selector
	}
	var (
		best    Handler
		pattern string
	)
	for p, h := range m.handlers {
		if !strings.HasSuffix(p, "/") || !strings.HasPrefix(selector, p) {
			continue
		}
		if len(p) > len(pattern) {
			best, pattern = h, p
		}
	}
	return best, pattern
}

func (m *RespondMux) RespondRPC(r Responder, c *Call) {
	h, pattern := m.Match(c.Selector)
	if h == nil {
		NotFoundHandler().RespondRPC(r, c)
		return
	}
	if strings.HasSuffix(pattern, "/") {
		sub := *c
		sub.Selector = cleanSelector(strings.TrimPrefix(cleanSelector(c.Selector), pattern))
		c = &sub
	}
	h.RespondRPC(r, c)
}

func cleanSelector(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "/")
	trailing := strings.HasSuffix(s, "/")
	s = path.Clean("/" + s)
	if trailing && s != "/" {
		s += "/"
	}
	return s
}
