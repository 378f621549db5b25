// Package bridge is the single entry point UI code uses to talk to the host:
// events, fire-and-forget methods, correlated requests and the small host
// features built on them.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/capability"
	"github.com/alien-id/miniapp-sdk/internal/events"
	"github.com/alien-id/miniapp-sdk/internal/metrics"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
	"github.com/alien-id/miniapp-sdk/internal/request"
	"github.com/alien-id/miniapp-sdk/internal/transport"
)

type Bridge struct {
	transport *transport.Transport
	bus       *events.Bus
	requests  *request.Correlator
	registry  *capability.Registry
	version   string
	log       zerolog.Logger

	closeOnce sync.Once
	dispose   func()
}

type options struct {
	log      zerolog.Logger
	metrics  metrics.Recorder
	registry *capability.Registry
	version  string
	timeout  time.Duration
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithRegistry(r *capability.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithContractVersion sets the host contract version used to gate methods,
// normally launch.Params.ContractVersion. Empty disables gating.
func WithContractVersion(v string) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithTimeout sets the default request deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New wires transport, bus and correlator over env and starts routing
// inbound messages. Call Close to stop.
func New(env transport.Environment, opts ...Option) *Bridge {
	o := options{
		log:      zerolog.Nop(),
		metrics:  metrics.NoopRecorder{},
		registry: capability.Default(),
		timeout:  request.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	tr := transport.New(env, transport.WithLogger(o.log.With().Str("component", "transport").Logger()))
	bus := events.New(tr, events.WithLogger(o.log.With().Str("component", "events").Logger()))
	b := &Bridge{
		transport: tr,
		bus:       bus,
		requests: request.New(tr, bus,
			request.WithLogger(o.log.With().Str("component", "request").Logger()),
			request.WithMetrics(o.metrics),
			request.WithDefaultTimeout(o.timeout),
		),
		registry: o.registry,
		version:  o.version,
		log:      o.log,
	}
	b.dispose = tr.OnMessage(b.route)
	return b
}

func (b *Bridge) route(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeEvent:
		b.bus.HandleMessage(msg)
	case protocol.TypeResponse:
		b.requests.Resolve(msg)
	default:
		b.log.Debug().Str("name", msg.Name).Msg("ignore inbound method message")
	}
}

// Close stops inbound routing. Pending requests still end by deadline.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		if b.dispose != nil {
			b.dispose()
		}
	})
}

func (b *Bridge) IsAvailable() bool { return b.transport.IsBridgeAvailable() }

func (b *Bridge) ContractVersion() string { return b.version }

// Supports reports whether the host's contract version includes method.
func (b *Bridge) Supports(method string) bool {
	return b.registry.IsMethodSupported(method, b.version)
}

func (b *Bridge) check(method string) error {
	if b.Supports(method) {
		return nil
	}
	minV, _ := b.registry.MinVersion(method)
	return &MethodNotSupportedError{Method: method, Version: b.version, MinVersion: string(minV)}
}

func (b *Bridge) On(name string, fn events.Listener) *events.Subscription {
	return b.bus.On(name, fn)
}

func (b *Bridge) Off(name string, sub *events.Subscription) {
	b.bus.Off(name, sub)
}

// Once waits for the next name event.
func (b *Bridge) Once(ctx context.Context, name string) (json.RawMessage, error) {
	got := make(chan json.RawMessage, 1)
	sub := b.bus.On(name, func(payload json.RawMessage) {
		select {
		case got <- payload:
		default:
		}
	})
	defer sub.Unsubscribe()

	select {
	case p := <-got:
		return p, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", name, ctx.Err())
	}
}

// Emit notifies local listeners and forwards the event to the host.
func (b *Bridge) Emit(name string, payload any) error {
	return b.bus.Emit(name, payload)
}

// Send posts a method without waiting for a reply.
func (b *Bridge) Send(method string, payload any) error {
	if err := b.check(method); err != nil {
		return err
	}
	return b.requests.Send(method, payload)
}

// Request posts method and waits for the matching responseEvent.
func (b *Bridge) Request(ctx context.Context, method string, params any, responseEvent string, opts ...request.CallOption) (json.RawMessage, error) {
	if err := b.check(method); err != nil {
		return nil, err
	}
	return b.requests.Request(ctx, method, params, responseEvent, opts...)
}

// Pending reports how many requests are still waiting.
func (b *Bridge) Pending() int { return b.requests.Pending() }

// Call is Request with the response decoded into T.
func Call[T any](ctx context.Context, b *Bridge, method string, params any, responseEvent string, opts ...request.CallOption) (T, error) {
	var out T
	raw, err := b.Request(ctx, method, params, responseEvent, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", responseEvent, err)
	}
	return out, nil
}

// Subscribe registers fn for name with the payload decoded into T. Payloads
// that do not decode are dropped.
func Subscribe[T any](b *Bridge, name string, fn func(T)) *events.Subscription {
	return b.bus.On(name, func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			b.log.Debug().Err(err).Str("event", name).Msg("drop undecodable payload")
			return
		}
		fn(v)
	})
}
