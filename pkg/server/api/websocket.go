package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Hub streams aggregated records to websocket clients. Clients receive
// every symbol until they subscribe to specific ones.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	all     bool
	symbols map[string]struct{}
}

// ClientMessage is a request sent by a client.
type ClientMessage struct {
	Type    string   `json:"type"` // subscribe, unsubscribe, ping
	Symbols []string `json:"symbols"`
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Hub{
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Name labels the sink in metrics.
func (h *Hub) Name() string { return "websocket" }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts n to every subscribed client. Slow clients miss
// messages rather than block the engine.
func (h *Hub) Notify(_ context.Context, n fees.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(n.Symbol) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client send buffer full, skipping update", "symbol", n.Symbol)
		}
	}
	return nil
}

// HandleWebSocket upgrades the request and starts the client pumps.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return nil
	}

	client := &wsClient{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		all:     true,
		symbols: make(map[string]struct{}),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()

	h.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())
	return nil
}

// Close disconnects every client. Each read pump then unregisters its
// client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *wsClient) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Debug("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Symbols)
	case "unsubscribe":
		c.unsubscribe(msg.Symbols)
	case "ping":
		c.reply(map[string]string{"type": "pong"})
	default:
		c.reply(map[string]string{"type": "error", "error": "unknown message type"})
	}
}

func (c *wsClient) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.all = true
		c.symbols = make(map[string]struct{})
		return
	}
	c.all = false
	for _, s := range symbols {
		c.symbols[fees.NormalizeSymbol(s)] = struct{}{}
	}
}

func (c *wsClient) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.all = false
		c.symbols = make(map[string]struct{})
		return
	}
	for _, s := range symbols {
		delete(c.symbols, fees.NormalizeSymbol(s))
	}
}

func (c *wsClient) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

// reply runs on the read pump; send is closed only after the read pump exits.
func (c *wsClient) reply(v interface{}) {
	data, _ := json.Marshal(v)
	select {
	case c.send <- data:
	default:
	}
}
