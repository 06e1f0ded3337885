package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/service"
	"github.com/rl1809/order-realtime/internal/metrics"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	requestTimeout = 15 * time.Second

	inGetOrderDetails = "get_order_details"
	inGetOrders       = "get_orders"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type orderDetailsRequest struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
}

type ordersRequest struct {
	Page       int    `json:"page"`
	SearchTerm string `json:"searchTerm"`
}

// client is one live socket. userID is the identity the proxy set on the
// upgrade request; it is empty for unauthenticated sockets.
type client struct {
	id     string
	userID string
	send   chan []byte
}

// Hub tracks live connections and delivers events to them. A connection
// whose send buffer is full loses the event; Emit never waits on a socket.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	buffer  int
	metrics *metrics.Registry
}

func NewHub(buffer int, m *metrics.Registry) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{clients: make(map[string]*client), buffer: buffer, metrics: m}
}

// Emit sends one event to connID. Unknown connections are ignored.
func (h *Hub) Emit(connID, event string, payload any) error {
	b, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return nil
	}
	select {
	case c.send <- b:
	default:
		h.metrics.NotificationsOverflow.Inc()
		log.Warn().Str("conn_id", connID).Str("event", event).Msg("send buffer full, dropping event")
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(userID string) *client {
	c := &client{id: uuid.NewString(), userID: userID, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.Connections.Inc()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.metrics.Connections.Dec()
	}
	h.mu.Unlock()
}

// CloseAll drops every connection. Write pumps see the closed channel and
// send a close frame.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
		h.metrics.Connections.Dec()
	}
}

type WSHandler struct {
	hub          *Hub
	realtime     *service.RealtimeService
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewWSHandler serves the real-time channel. An empty allowedOrigins accepts
// any origin.
func NewWSHandler(hub *Hub, realtime *service.RealtimeService, allowedOrigins []string, writeTimeout time.Duration) *WSHandler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		hub:          hub,
		realtime:     realtime,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := h.hub.register(r.Header.Get(headerUserID))
	logger := log.With().Str("conn_id", c.id).Logger()
	logger.Debug().Msg("client connected")

	h.hub.Emit(c.id, service.EventConnected, map[string]string{"connectionId": c.id})
	go h.writePump(conn, c)

	h.readPump(conn, c)

	h.realtime.Disconnect(c.id)
	h.hub.unregister(c)
	logger.Debug().Msg("client disconnected")
}

func (h *WSHandler) readPump(conn *websocket.Conn, c *client) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}
		h.dispatch(c, raw)
	}
}

func (h *WSHandler) dispatch(c *client, raw []byte) {
	connID := c.id
	var in envelope
	if err := json.Unmarshal(raw, &in); err != nil {
		h.emitError(connID, "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch in.Event {
	case inGetOrderDetails:
		var req orderDetailsRequest
		if err := decodeData(in.Data, &req); err != nil {
			h.emitError(connID, "malformed get_order_details payload")
			return
		}
		// A proxy-set identity wins over whatever the payload claims.
		userID := req.UserID
		if c.userID != "" {
			userID = c.userID
		}
		err = h.realtime.GetOrderDetails(ctx, connID, userID, req.OrderID)
	case inGetOrders:
		var req ordersRequest
		if err := decodeData(in.Data, &req); err != nil {
			h.emitError(connID, "malformed get_orders payload")
			return
		}
		err = h.realtime.GetOrders(ctx, connID, req.Page, req.SearchTerm)
	default:
		h.emitError(connID, "unknown event: "+in.Event)
		return
	}

	if err == nil {
		return
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		h.emitError(connID, err.Error())
		return
	}
	log.Error().Err(err).Str("conn_id", connID).Str("event", in.Event).Msg("request failed")
	h.emitError(connID, "internal error")
}

func (h *WSHandler) emitError(connID, message string) {
	h.hub.Emit(connID, service.EventError, map[string]string{"message": message})
}

func (h *WSHandler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decodeData treats a missing payload as an empty object.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
