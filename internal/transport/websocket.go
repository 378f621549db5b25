package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketEnv relays the bridge over a websocket to a host process. The
// connection plays the role of the native handle until it drops.
type WebSocketEnv struct {
	conn    *websocket.Conn
	globals Globals
	log     zerolog.Logger

	dialRetries uint

	writeMu sync.Mutex

	handlers handlerSet

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	readErr   error
}

type WebSocketOption func(*WebSocketEnv)

func WithWebSocketLogger(l zerolog.Logger) WebSocketOption {
	return func(e *WebSocketEnv) {
		e.log = l
	}
}

// WithDialRetries retries a failed dial up to n more times with exponential
// backoff. A rejected bearer token is not retried.
func WithDialRetries(n uint) WebSocketOption {
	return func(e *WebSocketEnv) {
		e.dialRetries = n
	}
}

// DialWebSocket connects to a host and starts the reader. authToken, when
// set, is sent as a bearer token.
func DialWebSocket(ctx context.Context, url, authToken string, globals Globals, opts ...WebSocketOption) (*WebSocketEnv, error) {
	probe := &WebSocketEnv{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(probe)
	}

	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(err)
			}
			probe.log.Debug().Err(err).Str("url", url).Msg("dial host failed")
			return nil, err
		}
		return conn, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(probe.dialRetries+1))
	if err != nil {
		return nil, fmt.Errorf("dial host %s: %w", url, err)
	}
	return NewWebSocketEnv(conn, globals, opts...), nil
}

// NewWebSocketEnv wraps an established connection and starts reading from it.
func NewWebSocketEnv(conn *websocket.Conn, globals Globals, opts ...WebSocketOption) *WebSocketEnv {
	if globals == nil {
		globals = NewMapGlobals(nil)
	}
	e := &WebSocketEnv{
		conn:    conn,
		globals: globals,
		log:     zerolog.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.read()
	return e
}

func (e *WebSocketEnv) read() {
	defer e.shutdown()
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				e.log.Warn().Err(err).Msg("recv host->miniapp failed")
			}
			e.mu.Lock()
			e.readErr = err
			e.mu.Unlock()
			return
		}
		e.handlers.deliver(string(data))
	}
}

func (e *WebSocketEnv) shutdown() {
	e.closeOnce.Do(func() {
		close(e.done)
		_ = e.conn.Close()
		e.log.Debug().Msg("host connection closed")
	})
}

// PostMessage writes one text frame. Safe for concurrent use.
func (e *WebSocketEnv) PostMessage(data string) error {
	select {
	case <-e.done:
		return ErrBridgeUnavailable
	default:
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteMessage(websocket.TextMessage, []byte(data))
}

func (e *WebSocketEnv) NativeBridge() NativeBridge {
	select {
	case <-e.done:
		return nil
	default:
		return e
	}
}

func (e *WebSocketEnv) Parent() Poster { return nil }

func (e *WebSocketEnv) Listen(handler func(data any)) func() {
	return e.handlers.add(handler)
}

func (e *WebSocketEnv) Globals() Globals { return e.globals }

// Done is closed once the connection is gone.
func (e *WebSocketEnv) Done() <-chan struct{} { return e.done }

// Err returns the read error that ended the connection, if any.
func (e *WebSocketEnv) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readErr
}

// Close sends a close frame and tears the connection down.
func (e *WebSocketEnv) Close() error {
	select {
	case <-e.done:
		return nil
	default:
	}
	e.writeMu.Lock()
	err := e.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	e.writeMu.Unlock()
	e.shutdown()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
