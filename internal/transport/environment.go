package transport

import (
	"os"
	"sync"
)

// NativeBridge is the handle a native host injects into the miniapp runtime.
// It only accepts serialized text.
type NativeBridge interface {
	PostMessage(data string) error
}

// Poster delivers structured messages to an enclosing browsing context.
type Poster interface {
	PostMessage(data any) error
}

// Globals exposes host-injected values such as the launch parameters.
type Globals interface {
	Lookup(key string) (string, bool)
}

// MutableGlobals is implemented by globals that development tooling may
// overwrite, the same way a host would inject them.
type MutableGlobals interface {
	Globals
	Set(key, value string)
	Delete(key string)
}

// Environment is everything the transport needs from the host runtime. It is
// injected rather than read from ambient state so tests can substitute it.
//
// NativeBridge and Parent must return an untyped nil when the channel does
// not exist.
type Environment interface {
	NativeBridge() NativeBridge
	Parent() Poster
	Listen(handler func(data any)) (dispose func())
	Globals() Globals
}

type MapGlobals struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMapGlobals(values map[string]string) *MapGlobals {
	g := &MapGlobals{values: make(map[string]string, len(values))}
	for k, v := range values {
		g.values[k] = v
	}
	return g
}

func (g *MapGlobals) Lookup(key string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.values[key]
	return v, ok
}

func (g *MapGlobals) Set(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[key] = value
}

func (g *MapGlobals) Delete(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.values, key)
}

// ProcessGlobals reads globals from the process environment. A host that
// spawns the miniapp as a child process injects launch values this way.
type ProcessGlobals struct{}

func (ProcessGlobals) Lookup(key string) (string, bool) { return os.LookupEnv(key) }
func (ProcessGlobals) Set(key, value string)            { _ = os.Setenv(key, value) }
func (ProcessGlobals) Delete(key string)                { _ = os.Unsetenv(key) }

// handlerSet is the listener bookkeeping shared by the concrete environments.
type handlerSet struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(any)
	order    []uint64
}

func (h *handlerSet) add(fn func(any)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = make(map[uint64]func(any))
	}
	h.nextID++
	id := h.nextID
	h.handlers[id] = fn
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (h *handlerSet) deliver(data any) {
	h.mu.RLock()
	fns := make([]func(any), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.handlers[id])
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (h *handlerSet) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
