// Package transport moves protocol messages between the miniapp and its host
// without looking at what they mean.
package transport

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

var (
	ErrBridge = errors.New("bridge error")
	// ErrBridgeUnavailable means there is neither a native handle nor a
	// parent context to post to: the miniapp runs outside a host.
	ErrBridgeUnavailable = fmt.Errorf("%w: bridge is not available, a host app environment is required", ErrBridge)
	// ErrWindowUnavailable means there is no runtime environment at all.
	ErrWindowUnavailable = fmt.Errorf("%w: no host environment, messaging primitives are missing", ErrBridge)
)

type Transport struct {
	env Environment
	log zerolog.Logger
}

type Option func(*Transport)

func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) {
		t.log = l
	}
}

func New(env Environment, opts ...Option) *Transport {
	t := &Transport{env: env, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Environment() Environment { return t.env }

// IsBridgeAvailable reports whether Send has a channel to use.
func (t *Transport) IsBridgeAvailable() bool {
	if t.env == nil {
		return false
	}
	return t.env.NativeBridge() != nil || t.env.Parent() != nil
}

// Send delivers msg through the native handle when present, falling back to
// the parent context. It never drops a message silently.
func (t *Transport) Send(msg protocol.Message) error {
	if t.env == nil {
		return ErrWindowUnavailable
	}

	if native := t.env.NativeBridge(); native != nil {
		data, err := msg.Marshal()
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", msg.Type, msg.Name, err)
		}
		if err := native.PostMessage(string(data)); err != nil {
			return fmt.Errorf("post %s %s to native bridge: %w", msg.Type, msg.Name, err)
		}
		t.log.Debug().Str("type", string(msg.Type)).Str("name", msg.Name).Msg("sent via native bridge")
		return nil
	}

	if parent := t.env.Parent(); parent != nil {
		if err := parent.PostMessage(msg); err != nil {
			return fmt.Errorf("post %s %s to parent: %w", msg.Type, msg.Name, err)
		}
		t.log.Debug().Str("type", string(msg.Type)).Str("name", msg.Name).Msg("sent via parent")
		return nil
	}

	return ErrBridgeUnavailable
}

// OnMessage registers handler for validated inbound messages. Malformed input
// is dropped here and never reaches handler.
func (t *Transport) OnMessage(handler func(protocol.Message)) (dispose func()) {
	if t.env == nil {
		return func() {}
	}
	return t.env.Listen(func(data any) {
		raw, ok := protocol.Normalize(data)
		if !ok {
			t.log.Debug().Type("data", data).Msg("drop inbound: unsupported data")
			return
		}
		msg, err := protocol.Parse(raw)
		if err != nil {
			t.log.Debug().Err(err).Msg("drop inbound")
			return
		}
		handler(msg)
	})
}
