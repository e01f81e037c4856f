package websockethub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	MessageTypeEvent                    = "event"
	MessageTypeChallengeAuthorize       = "challenge-authorize"
	MessageTypeChallengeAuthorizeResult = "challenge-authorize-result"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	authorizeWait  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AuthorizeFunc resumes a paused single trade with the solution sent by a
// client.
type AuthorizeFunc func(
	ctx context.Context, singleTradeID, accountID, code, secret string,
) error

// EventMessage is pushed to every client for each published event.
type EventMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// AuthorizeMessage is the only message accepted from clients.
type AuthorizeMessage struct {
	Type          string `json:"type"`
	SingleTradeID string `json:"singleTradeId"`
	AccountID     string `json:"accountId"`
	Code          string `json:"code,omitempty"`
	Secret        string `json:"secret,omitempty"`
}

// AuthorizeResultMessage is the reply to an AuthorizeMessage.
type AuthorizeResultMessage struct {
	Type          string `json:"type"`
	SingleTradeID string `json:"singleTradeId"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts the published events to every connected websocket client.
// Messages for a client whose buffer is full are dropped.
type Hub struct {
	lock    sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Publish(topic, message string) error {
	payload := json.RawMessage(message)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(message)
	}
	buf, err := json.Marshal(EventMessage{MessageTypeEvent, topic, payload})
	if err != nil {
		return err
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
			log.Warnf(
				"websocket client %s too slow, dropped %s event",
				c.conn.RemoteAddr(), topic,
			)
		}
	}
	return nil
}

// Handler upgrades the requests to websocket connections and serves them.
// The challenge solutions sent by the clients are forwarded to authorize.
func (h *Hub) Handler(authorize AuthorizeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("failed to upgrade websocket connection")
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
		if !h.register(c) {
			conn.Close()
			return
		}
		log.Debugf("websocket client %s connected", conn.RemoteAddr())

		go h.writePump(c)
		h.readPump(r.Context(), c, authorize)
	})
}

func (h *Hub) NumClients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(c *client) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) reply(c *client, msg interface{}) {
	buf, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- buf:
	default:
		log.Warnf("websocket client %s too slow, dropped reply", c.conn.RemoteAddr())
	}
}

func (h *Hub) readPump(
	ctx context.Context, c *client, authorize AuthorizeFunc,
) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		log.Debugf("websocket client %s disconnected", c.conn.RemoteAddr())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// nolint
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req AuthorizeMessage
		if err := json.Unmarshal(message, &req); err != nil ||
			req.Type != MessageTypeChallengeAuthorize {
			h.reply(c, AuthorizeResultMessage{
				Type:  MessageTypeChallengeAuthorizeResult,
				Error: "unsupported message",
			})
			continue
		}

		h.reply(c, handleAuthorize(ctx, authorize, req))
	}
}

func handleAuthorize(
	ctx context.Context, authorize AuthorizeFunc, req AuthorizeMessage,
) AuthorizeResultMessage {
	res := AuthorizeResultMessage{
		Type:          MessageTypeChallengeAuthorizeResult,
		SingleTradeID: req.SingleTradeID,
	}
	if authorize == nil {
		res.Error = "challenge authorization not supported"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, authorizeWait)
	defer cancel()

	if err := authorize(
		ctx, req.SingleTradeID, req.AccountID, req.Code, req.Secret,
	); err != nil {
		log.WithError(err).Debugf(
			"websocket challenge authorize for single trade %s failed",
			req.SingleTradeID,
		)
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			// nolint
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// nolint
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// nolint
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
