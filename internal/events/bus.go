// Package events is the name-keyed publish/subscribe hub sitting between the
// transport and everything that listens for host events.
package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

type Listener func(payload json.RawMessage)

// Sender is the outbound half of the transport.
type Sender interface {
	Send(msg protocol.Message) error
}

// Subscription identifies one registration. Unsubscribe is idempotent.
type Subscription struct {
	bus  *Bus
	name string
	id   uint64
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Off(s.name, s)
}

type entry struct {
	id uint64
	fn Listener
}

type Bus struct {
	sender Sender
	log    zerolog.Logger

	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]entry
}

type Option func(*Bus)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) {
		b.log = l
	}
}

// New returns a bus forwarding emitted events to sender. sender may be nil,
// in which case Emit only notifies local listeners.
func New(sender Sender, opts ...Option) *Bus {
	b := &Bus{
		sender:    sender,
		log:       zerolog.Nop(),
		listeners: make(map[string][]entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers fn for name. Listeners for one name run in registration order.
func (b *Bus) On(name string, fn Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], entry{id: id, fn: fn})
	return &Subscription{bus: b, name: name, id: id}
}

// Off removes sub. Removing something that was never registered is a no-op.
func (b *Bus) Off(name string, sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[name]
	for i, e := range list {
		if e.id != sub.id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = list
		}
		return
	}
}

// Dispatch notifies the local listeners of name. It is the inbound path used
// for messages arriving from the host.
func (b *Bus) Dispatch(name string, payload json.RawMessage) {
	b.mu.RLock()
	list := b.listeners[name]
	snapshot := make([]Listener, len(list))
	for i, e := range list {
		snapshot[i] = e.fn
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		b.call(name, fn, payload)
	}
}

func (b *Bus) call(name string, fn Listener, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", name).Interface("panic", r).Msg("listener panicked")
		}
	}()
	fn(payload)
}

// Emit notifies local listeners and then forwards an event message to the
// host. Local delivery happens even when forwarding fails.
func (b *Bus) Emit(name string, payload any) error {
	msg, err := protocol.BuildEvent(name, payload)
	if err != nil {
		return err
	}
	b.Dispatch(name, msg.Payload)
	if b.sender == nil {
		return nil
	}
	if err := b.sender.Send(msg); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}

// HandleMessage routes an inbound event message to its listeners. Other
// message types are ignored.
func (b *Bus) HandleMessage(msg protocol.Message) {
	if msg.Type != protocol.TypeEvent {
		return
	}
	b.log.Debug().Str("event", msg.Name).Msg("dispatch")
	b.Dispatch(msg.Name, msg.Payload)
}

// Len reports how many listeners are registered for name.
func (b *Bus) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Names lists the event names with at least one listener.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		out = append(out, name)
	}
	return out
}
