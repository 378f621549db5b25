// Package request turns the fire-and-forget message channel into
// request/response calls matched by a per-call id.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/events"
	"github.com/alien-id/miniapp-sdk/internal/metrics"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

const DefaultTimeout = 30 * time.Second

type Sender interface {
	Send(msg protocol.Message) error
}

type Subscriber interface {
	On(name string, fn events.Listener) *events.Subscription
}

type outcome struct {
	payload json.RawMessage
	err     error
}

type pending struct {
	id     string
	method string
	once   sync.Once
	done   chan outcome
}

// settle delivers the first outcome and reports whether this call won.
func (p *pending) settle(o outcome) bool {
	won := false
	p.once.Do(func() {
		p.done <- o
		won = true
	})
	return won
}

type Correlator struct {
	sender  Sender
	bus     Subscriber
	log     zerolog.Logger
	metrics metrics.Recorder
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pending
}

type Option func(*Correlator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Correlator) {
		c.log = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// WithDefaultTimeout sets the deadline for calls that do not pass their own.
// Non-positive values keep DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(sender Sender, bus Subscriber, opts ...Option) *Correlator {
	c := &Correlator{
		sender:  sender,
		bus:     bus,
		log:     zerolog.Nop(),
		metrics: metrics.NoopRecorder{},
		timeout: DefaultTimeout,
		pending: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callOptions struct {
	timeout    time.Duration
	noDeadline bool
	reqID      string
}

type CallOption func(*callOptions)

// WithTimeout overrides the deadline for one call. Non-positive values leave
// the correlator default in place.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithoutDeadline drops the deadline so only the context ends the call.
func WithoutDeadline() CallOption {
	return func(o *callOptions) {
		o.noDeadline = true
	}
}

// WithReqID supplies the correlation id instead of generating one.
func WithReqID(id string) CallOption {
	return func(o *callOptions) {
		o.reqID = id
	}
}

// Send posts a method message without waiting for anything back.
func (c *Correlator) Send(method string, payload any) error {
	msg, err := protocol.BuildRequest(method, payload, "")
	if err != nil {
		return err
	}
	return c.sender.Send(msg)
}

// Request sends method with params and waits for the responseEvent whose
// payload echoes the call's reqId. Exactly one of payload or error is
// returned, and every resource the call registered is released before it
// returns.
func (c *Correlator) Request(ctx context.Context, method string, params any, responseEvent string, opts ...CallOption) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request %s: %w", method, err)
	}
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	reqID := o.reqID
	if reqID == "" {
		reqID = uuid.NewString()
	}

	payload, err := protocol.WithReqID(params, reqID)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", method, err)
	}
	msg, err := protocol.BuildRequest(method, payload, reqID)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", method, err)
	}

	p := &pending{id: reqID, method: method, done: make(chan outcome, 1)}
	c.mu.Lock()
	if _, exists := c.pending[reqID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("request %s %s: %w", method, reqID, ErrDuplicateRequest)
	}
	c.pending[reqID] = p
	c.mu.Unlock()

	sub := c.bus.On(responseEvent, func(raw json.RawMessage) {
		if protocol.ReqID(raw) != reqID {
			return
		}
		if !p.settle(outcome{payload: raw}) {
			c.metrics.IncCounter(metrics.LateResponses, map[string]string{"method": method})
			c.log.Debug().Str("method", method).Str("req_id", reqID).Msg("late response discarded")
		}
	})
	if o.noDeadline {
		o.timeout = 0
	}
	dl := newDeadline(o.timeout, func() {
		p.settle(outcome{err: &TimeoutError{Method: method, Timeout: o.timeout}})
	})
	stop := context.AfterFunc(ctx, func() {
		p.settle(outcome{err: fmt.Errorf("request %s: %w", method, context.Cause(ctx))})
	})
	defer func() {
		stop()
		dl.disarm()
		sub.Unsubscribe()
		c.mu.Lock()
		if c.pending[reqID] == p {
			delete(c.pending, reqID)
		}
		c.mu.Unlock()
	}()

	start := time.Now()
	labels := map[string]string{"method": method}
	c.metrics.IncCounter(metrics.RequestsTotal, labels)

	if err := c.sender.Send(msg); err != nil {
		p.settle(outcome{err: err})
		c.metrics.IncCounter(metrics.RequestFailures, labels)
		return nil, fmt.Errorf("request %s: %w", method, err)
	}
	dl.arm()
	c.log.Debug().Str("method", method).Str("req_id", reqID).Str("await", responseEvent).Msg("request sent")

	out := <-p.done
	c.metrics.ObserveLatency(metrics.RequestLatency, time.Since(start), labels)
	if out.err != nil {
		if _, ok := out.err.(*TimeoutError); ok {
			c.metrics.IncCounter(metrics.RequestTimeouts, labels)
			c.log.Warn().Str("method", method).Str("req_id", reqID).Dur("timeout", o.timeout).Msg("request timed out")
		} else {
			c.metrics.IncCounter(metrics.RequestFailures, labels)
		}
		return nil, out.err
	}
	return out.payload, nil
}

// Resolve settles the pending call named by a response message's req_id.
// It reports whether msg matched a call that was still waiting.
func (c *Correlator) Resolve(msg protocol.Message) bool {
	if msg.Type != protocol.TypeResponse || msg.ReqID == "" {
		return false
	}
	c.mu.Lock()
	p, ok := c.pending[msg.ReqID]
	c.mu.Unlock()
	if !ok {
		c.metrics.IncCounter(metrics.LateResponses, map[string]string{"method": msg.Name})
		c.log.Debug().Str("name", msg.Name).Str("req_id", msg.ReqID).Msg("response for unknown request discarded")
		return false
	}
	if msg.Error != "" {
		return p.settle(outcome{err: &HostError{Method: p.method, ReqID: msg.ReqID, Message: msg.Error}})
	}
	return p.settle(outcome{payload: msg.Payload})
}

// Pending reports how many calls are waiting for a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
