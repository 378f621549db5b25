package transport

import (
	"errors"
	"sync"

	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

const (
	ChannelNative = "native"
	ChannelParent = "parent"
)

// HostFunc answers one outbound method message. The returned messages are
// delivered back to the miniapp asynchronously, in order.
type HostFunc func(req protocol.Message) []protocol.Message

// MemoryEnv is an in-process environment with a scriptable host. Tests and
// local tooling use it in place of a real host.
type MemoryEnv struct {
	mu       sync.Mutex
	native   bool
	parent   bool
	sendErr  error
	sent     []protocol.Message
	via      []string
	hooks    map[string]HostFunc
	handlers handlerSet
	globals  *MapGlobals
}

// NewMemoryEnv returns an environment with a native handle and the given
// globals.
func NewMemoryEnv(globals map[string]string) *MemoryEnv {
	return &MemoryEnv{
		native:  true,
		hooks:   make(map[string]HostFunc),
		globals: NewMapGlobals(globals),
	}
}

func (e *MemoryEnv) SetNative(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.native = ok
}

func (e *MemoryEnv) SetParent(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parent = ok
}

// FailSends makes every post fail with err. A nil err restores delivery.
func (e *MemoryEnv) FailSends(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendErr = err
}

// Handle scripts the host's answer to method.
func (e *MemoryEnv) Handle(method string, fn HostFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[method] = fn
}

// Deliver hands data to every listener as if the host had posted it.
func (e *MemoryEnv) Deliver(data any) {
	e.handlers.deliver(data)
}

func (e *MemoryEnv) Sent() []protocol.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.Message, len(e.sent))
	copy(out, e.sent)
	return out
}

// SentNamed returns the outbound messages with the given name.
func (e *MemoryEnv) SentNamed(name string) []protocol.Message {
	var out []protocol.Message
	for _, m := range e.Sent() {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Via returns which channel carried each outbound message.
func (e *MemoryEnv) Via() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.via))
	copy(out, e.via)
	return out
}

// Listeners reports how many inbound listeners are registered.
func (e *MemoryEnv) Listeners() int { return e.handlers.len() }

func (e *MemoryEnv) NativeBridge() NativeBridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.native {
		return nil
	}
	return memoryNative{e}
}

func (e *MemoryEnv) Parent() Poster {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.parent {
		return nil
	}
	return memoryParent{e}
}

func (e *MemoryEnv) Listen(handler func(data any)) func() {
	return e.handlers.add(handler)
}

func (e *MemoryEnv) Globals() Globals { return e.globals }

func (e *MemoryEnv) record(data any, channel string) error {
	raw, ok := protocol.Normalize(data)
	if !ok {
		return errors.New("memory env: unsupported outbound data")
	}
	msg, err := protocol.Parse(raw)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.sendErr != nil {
		err := e.sendErr
		e.mu.Unlock()
		return err
	}
	e.sent = append(e.sent, msg)
	e.via = append(e.via, channel)
	hook := e.hooks[msg.Name]
	e.mu.Unlock()

	if hook != nil && msg.Type == protocol.TypeMethod {
		replies := hook(msg)
		if len(replies) > 0 {
			go func() {
				for _, r := range replies {
					data, err := r.Marshal()
					if err != nil {
						continue
					}
					e.Deliver(string(data))
				}
			}()
		}
	}
	return nil
}

type memoryNative struct{ e *MemoryEnv }

func (n memoryNative) PostMessage(data string) error { return n.e.record(data, ChannelNative) }

type memoryParent struct{ e *MemoryEnv }

func (p memoryParent) PostMessage(data any) error { return p.e.record(data, ChannelParent) }
