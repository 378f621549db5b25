// Package host is a development stand-in for the native host application. It
// serves miniapps over websocket and answers their method messages.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/metrics"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
	"github.com/alien-id/miniapp-sdk/internal/store"
)

const DefaultReplayTTL = 10 * time.Minute

// Handler answers one method message. The returned messages are written back
// to the connection that sent it, in order. Fire-and-forget methods return
// nothing.
type Handler func(ctx context.Context, req protocol.Message) ([]protocol.Message, error)

type clientConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type Hub struct {
	store     store.Store
	authToken string
	replayTTL time.Duration
	log       zerolog.Logger
	metrics   metrics.Recorder

	upgrader websocket.Upgrader

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	connMu sync.RWMutex
	conns  map[string]*clientConn
}

type Option func(*Hub)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) {
		h.log = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithAuthToken requires miniapps to present token as a bearer token.
func WithAuthToken(token string) Option {
	return func(h *Hub) {
		h.authToken = token
	}
}

// WithReplayTTL sets how long answered requests are remembered for replay.
func WithReplayTTL(d time.Duration) Option {
	return func(h *Hub) {
		h.replayTTL = d
	}
}

func NewHub(st store.Store, opts ...Option) *Hub {
	h := &Hub{
		store:     st,
		replayTTL: DefaultReplayTTL,
		log:       zerolog.Nop(),
		metrics:   metrics.NoopRecorder{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		handlers: make(map[string]Handler),
		conns:    make(map[string]*clientConn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle registers fn for method, replacing any previous handler.
func (h *Hub) Handle(method string, fn Handler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handlers[method] = fn
}

func (h *Hub) handler(method string) (Handler, bool) {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	fn, ok := h.handlers[method]
	return fn, ok
}

// HandleMiniapp upgrades r and serves the miniapp until it disconnects.
func (h *Hub) HandleMiniapp(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("miniapp unauthorized")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade miniapp ws failed")
		return
	}
	client := &clientConn{id: xid.New().String(), conn: conn}

	h.connMu.Lock()
	h.conns[client.id] = client
	active := len(h.conns)
	h.connMu.Unlock()

	h.log.Info().Str("conn", client.id).Str("remote", r.RemoteAddr).Int("active", active).Msg("miniapp connected")
	h.read(r.Context(), client)
}

func (h *Hub) read(ctx context.Context, client *clientConn) {
	log := h.log.With().Str("conn", client.id).Logger()
	defer func() {
		h.connMu.Lock()
		delete(h.conns, client.id)
		active := len(h.conns)
		h.connMu.Unlock()
		_ = client.conn.Close()
		log.Info().Int("active", active).Msg("miniapp disconnected")
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("recv miniapp->host failed")
			}
			return
		}
		msg, err := protocol.Parse(data)
		if err != nil {
			log.Debug().Err(err).Msg("drop malformed message")
			continue
		}
		if msg.Type != protocol.TypeMethod {
			log.Debug().Str("type", string(msg.Type)).Str("name", msg.Name).Msg("ignore non-method from miniapp")
			continue
		}
		if err := h.dispatch(ctx, client, msg); err != nil {
			log.Warn().Err(err).Str("method", msg.Name).Msg("handle method failed")
		}
	}
}

func replayKey(method, reqID string) string { return method + ":" + reqID }

func (h *Hub) dispatch(ctx context.Context, client *clientConn, msg protocol.Message) error {
	reqID := msg.ReqID
	if reqID == "" {
		reqID = protocol.ReqID(msg.Payload)
	}
	labels := map[string]string{"method": msg.Name}
	log := h.log.With().Str("conn", client.id).Str("method", msg.Name).Str("req_id", reqID).Logger()

	if reqID != "" {
		stored, seen, err := h.store.GetProcessed(ctx, replayKey(msg.Name, reqID))
		if err != nil {
			return err
		}
		if seen {
			h.metrics.IncCounter(metrics.HostReplays, labels)
			log.Debug().Msg("replay answered request")
			return h.writeAll(client, stored)
		}
	}

	fn, ok := h.handler(msg.Name)
	if !ok {
		log.Debug().Msg("no handler")
		return nil
	}

	start := time.Now()
	replies, err := fn(ctx, msg)
	h.metrics.IncCounter(metrics.HostMethodsHandled, labels)
	h.metrics.ObserveLatency(metrics.HostMethodLatency, time.Since(start), labels)
	if err != nil {
		if reqID == "" {
			return err
		}
		log.Warn().Err(err).Msg("handler failed, answering with error")
		resp, buildErr := protocol.BuildResponse(msg.Name, reqID, nil, err.Error())
		if buildErr != nil {
			return errors.Join(err, buildErr)
		}
		replies = []protocol.Message{resp}
	}
	if len(replies) == 0 {
		return nil
	}

	data, err := json.Marshal(replies)
	if err != nil {
		return fmt.Errorf("encode replies: %w", err)
	}
	if reqID != "" {
		if err := h.store.MarkProcessed(ctx, replayKey(msg.Name, reqID), data, h.replayTTL); err != nil {
			log.Warn().Err(err).Msg("remember reply failed")
		}
	}
	return h.writeAll(client, data)
}

func (h *Hub) writeAll(client *clientConn, data []byte) error {
	var replies []json.RawMessage
	if err := json.Unmarshal(data, &replies); err != nil {
		return fmt.Errorf("decode replies: %w", err)
	}
	for _, r := range replies {
		if err := client.write(r); err != nil {
			return fmt.Errorf("send host->miniapp: %w", err)
		}
	}
	return nil
}

// Broadcast emits event name to every connected miniapp.
func (h *Hub) Broadcast(name string, payload any) error {
	msg, err := protocol.BuildEvent(name, payload)
	if err != nil {
		return err
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	h.connMu.RLock()
	defer h.connMu.RUnlock()
	h.log.Debug().Str("event", name).Int("count", len(h.conns)).Msg("broadcast to miniapps")
	var errs []error
	for id, c := range h.conns {
		if err := c.write(data); err != nil {
			h.log.Warn().Err(err).Str("conn", id).Msg("broadcast to miniapp failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Conns reports how many miniapps are connected.
func (h *Hub) Conns() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.conns)
}

// Close sends a close frame to every miniapp.
func (h *Hub) Close() {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	for _, c := range h.conns {
		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		c.mu.Unlock()
	}
}

// reply builds the single event answering req.
func reply(name string, payload any) ([]protocol.Message, error) {
	msg, err := protocol.BuildEvent(name, payload)
	if err != nil {
		return nil, err
	}
	return []protocol.Message{msg}, nil
}
