// Package ws implements the WebSocket adapter streaming progress events to
// session observers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/service/bus"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// clientRequest is what a connected client may send: a subscription to one
// session's progress stream.
type clientRequest struct {
	Type       string `json:"type"`
	AnalysisID string `json:"analysis_id"`
}

// conn wraps a single WebSocket connection and its subscription cancels.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu      sync.Mutex
	unsubs  []func()
	writeMu sync.Mutex
}

// Hub upgrades connections and bridges them onto the progress bus. Each
// connection may subscribe to any number of sessions; a stream ends with the
// session's terminal event or the disconnect, whichever comes first.
type Hub struct {
	bus *bus.Bus

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a hub serving the given progress bus.
func NewHub(b *bus.Bus) *Hub {
	return &Hub{
		bus:   b,
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request and runs the subscription read loop.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: sock, cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)
	c.send(ctx, Message{Type: string(analysis.EventConnected)})

	go h.readLoop(ctx, c)
}

// readLoop consumes client messages until disconnect.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("websocket bad request", "error", err)
			continue
		}
		if req.Type == "subscribe" && req.AnalysisID != "" {
			h.subscribe(ctx, c, req.AnalysisID)
		}
	}
}

// subscribe attaches the connection to one session's event stream.
func (h *Hub) subscribe(ctx context.Context, c *conn, sessionID string) {
	ch, cancel := h.bus.Subscribe(sessionID)
	c.addUnsub(cancel)

	ack, _ := json.Marshal(map[string]string{"analysis_id": sessionID})
	c.send(ctx, Message{Type: "subscribed", Payload: ack})

	go func() {
		defer cancel()
		for ev := range ch {
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("websocket event marshal", "error", err)
				continue
			}
			if !c.send(ctx, Message{Type: string(ev.Kind), Payload: payload}) {
				return
			}
			if ev.IsTerminal() {
				return
			}
		}
	}()
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		c.unsubscribeAll()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}

// send writes one message; a failed write reports false so the stream stops.
func (c *conn) send(ctx context.Context, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return true
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}

func (c *conn) addUnsub(fn func()) {
	c.mu.Lock()
	c.unsubs = append(c.unsubs, fn)
	c.mu.Unlock()
}

func (c *conn) unsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fn := range c.unsubs {
		fn()
	}
	c.unsubs = nil
}
