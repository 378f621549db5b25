package request

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alien-id/miniapp-sdk/internal/events"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

type fakeHost struct {
	mu     sync.Mutex
	sent   []protocol.Message
	err    error
	onSend func(protocol.Message)
}

func (h *fakeHost) Send(msg protocol.Message) error {
	h.mu.Lock()
	if h.err != nil {
		h.mu.Unlock()
		return h.err
	}
	h.sent = append(h.sent, msg)
	fn := h.onSend
	h.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return nil
}

func (h *fakeHost) messages() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Message(nil), h.sent...)
}

func newCorrelator(h *fakeHost, opts ...Option) (*Correlator, *events.Bus) {
	bus := events.New(nil)
	return New(h, bus, opts...), bus
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRequestResolvesWithMatchingPayload(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)
	h.onSend = func(m protocol.Message) {
		go bus.Dispatch("pong", raw(t, map[string]any{"reqId": "abc", "ok": true}))
	}

	payload, err := c.Request(context.Background(), "ping", map[string]any{"n": 1}, "pong", WithReqID("abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reqId":"abc","ok":true}`, string(payload))

	sent := h.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.TypeMethod, sent[0].Type)
	assert.Equal(t, "ping", sent[0].Name)
	assert.JSONEq(t, `{"n":1,"reqId":"abc"}`, string(sent[0].Payload))

	assert.Zero(t, bus.Len("pong"))
	assert.Zero(t, c.Pending())
}

func TestRequestGeneratesID(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)
	h.onSend = func(m protocol.Message) {
		go bus.Dispatch("pong", raw(t, map[string]any{"reqId": protocol.ReqID(m.Payload)}))
	}

	_, err := c.Request(context.Background(), "ping", nil, "pong")
	require.NoError(t, err)
	id := protocol.ReqID(h.messages()[0].Payload)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, h.messages()[0].ReqID)
}

func TestRequestTimesOut(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)

	start := time.Now()
	_, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("abc"), WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ping", te.Method)
	assert.Contains(t, err.Error(), "ping")

	assert.Zero(t, bus.Len("pong"))
	assert.Zero(t, c.Pending())

	// a response after the deadline is simply discarded
	bus.Dispatch("pong", raw(t, map[string]any{"reqId": "abc"}))
	assert.Zero(t, c.Pending())
}

func TestZeroTimeoutKeepsDefault(t *testing.T) {
	h := &fakeHost{}
	c, _ := newCorrelator(h, WithDefaultTimeout(50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("abc"), WithTimeout(0))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("request with zero timeout never settled")
	}
	assert.Zero(t, c.Pending())

	c, _ = newCorrelator(h, WithDefaultTimeout(-time.Second))
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestWithoutDeadlineWaitsForContext(t *testing.T) {
	h := &fakeHost{}
	c, _ := newCorrelator(h, WithDefaultTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, "ping", nil, "pong", WithReqID("abc"), WithoutDeadline())
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("settled without cancellation: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not settle the request")
	}
	assert.Zero(t, c.Pending())
}

func TestConcurrentRequestsCorrelateByID(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)

	var mu sync.Mutex
	seen := 0
	h.onSend = func(protocol.Message) {
		mu.Lock()
		seen++
		both := seen == 2
		mu.Unlock()
		if both {
			go func() {
				bus.Dispatch("pong", raw(t, map[string]any{"reqId": "req-2", "v": 2}))
				bus.Dispatch("pong", raw(t, map[string]any{"reqId": "req-1", "v": 1}))
			}()
		}
	}

	results := make(map[string]json.RawMessage)
	var wg sync.WaitGroup
	for _, id := range []string{"req-1", "req-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID(id), WithTimeout(2*time.Second))
			assert.NoError(t, err)
			mu.Lock()
			results[id] = p
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	assert.JSONEq(t, `{"reqId":"req-1","v":1}`, string(results["req-1"]))
	assert.JSONEq(t, `{"reqId":"req-2","v":2}`, string(results["req-2"]))
	assert.Zero(t, bus.Len("pong"))
}

func TestMismatchedIDIsIgnored(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)
	h.onSend = func(protocol.Message) {
		go func() {
			bus.Dispatch("pong", raw(t, map[string]any{"reqId": "other"}))
			bus.Dispatch("pong", raw(t, map[string]any{"nothing": true}))
			bus.Dispatch("pong", raw(t, map[string]any{"reqId": "abc", "final": true}))
		}()
	}

	p, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("abc"), WithTimeout(2*time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reqId":"abc","final":true}`, string(p))
}

func TestSnakeCaseReqIDIsAccepted(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)
	h.onSend = func(protocol.Message) {
		go bus.Dispatch("pong", raw(t, map[string]any{"req_id": "abc"}))
	}

	_, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("abc"), WithTimeout(2*time.Second))
	assert.NoError(t, err)
}

func TestContextCancellationSettles(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)
	ctx, cancel := context.WithCancel(context.Background())
	h.onSend = func(protocol.Message) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
	}

	_, err := c.Request(ctx, "ping", nil, "pong")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, bus.Len("pong"))
	assert.Zero(t, c.Pending())

	_, err = c.Request(ctx, "ping", nil, "pong")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.messages(), 1, "a dead context sends nothing")
}

func TestDuplicateInFlightID(t *testing.T) {
	h := &fakeHost{}
	c, bus := newCorrelator(h)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("dup"), WithTimeout(2*time.Second))
		done <- err
	}()
	require.Eventually(t, func() bool { return len(h.messages()) == 1 }, time.Second, time.Millisecond)

	_, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("dup"))
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	bus.Dispatch("pong", raw(t, map[string]any{"reqId": "dup"}))
	assert.NoError(t, <-done)
}

func TestSendFailureCleansUp(t *testing.T) {
	boom := errors.New("boom")
	h := &fakeHost{err: boom}
	c, bus := newCorrelator(h)

	_, err := c.Request(context.Background(), "ping", nil, "pong")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, bus.Len("pong"))
	assert.Zero(t, c.Pending())
}

func TestResolveResponseMessages(t *testing.T) {
	h := &fakeHost{}
	c, _ := newCorrelator(h)
	h.onSend = func(m protocol.Message) {
		go func() {
			resp, _ := protocol.BuildResponse(m.Name, m.ReqID, map[string]bool{"ok": true}, "")
			c.Resolve(resp)
		}()
	}

	p, err := c.Request(context.Background(), "ping", nil, "pong", WithReqID("r1"), WithTimeout(2*time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(p))

	h.onSend = func(m protocol.Message) {
		go func() {
			resp, _ := protocol.BuildResponse(m.Name, m.ReqID, nil, "denied")
			c.Resolve(resp)
		}()
	}
	_, err = c.Request(context.Background(), "ping", nil, "pong", WithReqID("r2"), WithTimeout(2*time.Second))
	var he *HostError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ping", he.Method)
	assert.Equal(t, "denied", he.Message)

	stale, _ := protocol.BuildResponse("ping", "r2", nil, "")
	assert.False(t, c.Resolve(stale))
	ev, _ := protocol.BuildEvent("pong", nil)
	assert.False(t, c.Resolve(ev))
}

func TestSendIsFireAndForget(t *testing.T) {
	h := &fakeHost{}
	c, _ := newCorrelator(h)

	require.NoError(t, c.Send("app:ready", nil))
	sent := h.messages()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].ReqID)
	assert.JSONEq(t, `{}`, string(sent[0].Payload))
}

func TestDeadlineDisarm(t *testing.T) {
	fired := make(chan struct{}, 1)
	dl := newDeadline(20*time.Millisecond, func() { fired <- struct{}{} })
	dl.arm()
	assert.True(t, dl.disarm())
	assert.False(t, dl.disarm())

	select {
	case <-fired:
		t.Fatal("disarmed deadline fired")
	case <-time.After(50 * time.Millisecond):
	}

	never := newDeadline(0, func() { fired <- struct{}{} })
	never.arm()
	assert.False(t, never.disarm())
}
