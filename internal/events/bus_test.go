package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

type recordingSender struct {
	sent []protocol.Message
	err  error
}

func (s *recordingSender) Send(msg protocol.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestListenersRunInRegistrationOrder(t *testing.T) {
	b := New(nil)
	var order []int
	b.On("x", func(json.RawMessage) { order = append(order, 1) })
	b.On("x", func(json.RawMessage) { order = append(order, 2) })
	b.On("y", func(json.RawMessage) { order = append(order, 99) })

	b.Dispatch("x", json.RawMessage(`{}`))
	assert.Equal(t, []int{1, 2}, order)
}

func TestOffPrunesEmptyNames(t *testing.T) {
	b := New(nil)
	sub := b.On("x", func(json.RawMessage) {})
	assert.Equal(t, 1, b.Len("x"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, b.Len("x"))
	assert.Empty(t, b.Names())

	b.Off("never", &Subscription{})
	b.Off("x", nil)
}

func TestListenerMayUnsubscribeItself(t *testing.T) {
	b := New(nil)
	calls := 0
	var sub *Subscription
	sub = b.On("x", func(json.RawMessage) {
		calls++
		sub.Unsubscribe()
	})
	other := 0
	b.On("x", func(json.RawMessage) { other++ })

	b.Dispatch("x", nil)
	b.Dispatch("x", nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestEmitNotifiesLocallyAndForwards(t *testing.T) {
	s := &recordingSender{}
	b := New(s)
	var got json.RawMessage
	b.On("app:ready", func(p json.RawMessage) { got = p })

	require.NoError(t, b.Emit("app:ready", map[string]bool{"ok": true}))
	assert.JSONEq(t, `{"ok":true}`, string(got))
	require.Len(t, s.sent, 1)
	assert.Equal(t, protocol.TypeEvent, s.sent[0].Type)
	assert.Equal(t, "app:ready", s.sent[0].Name)
}

func TestEmitReportsForwardFailure(t *testing.T) {
	boom := errors.New("boom")
	b := New(&recordingSender{err: boom})
	called := false
	b.On("e", func(json.RawMessage) { called = true })

	assert.ErrorIs(t, b.Emit("e", nil), boom)
	assert.True(t, called)
}

func TestHandleMessageOnlyRoutesEvents(t *testing.T) {
	b := New(nil)
	n := 0
	b.On("x", func(json.RawMessage) { n++ })

	ev, err := protocol.BuildEvent("x", nil)
	require.NoError(t, err)
	b.HandleMessage(ev)

	m, err := protocol.BuildRequest("x", nil, "")
	require.NoError(t, err)
	b.HandleMessage(m)

	assert.Equal(t, 1, n)
}

func TestPanickingListenerDoesNotStopDispatch(t *testing.T) {
	b := New(nil)
	reached := false
	b.On("x", func(json.RawMessage) { panic("bad listener") })
	b.On("x", func(json.RawMessage) { reached = true })

	b.Dispatch("x", nil)
	assert.True(t, reached)
}
