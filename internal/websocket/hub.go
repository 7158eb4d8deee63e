package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/session"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Resolver is satisfied by *middleware.JWTAuth.
type Resolver interface {
	Resolve(token string) (*session.Handle, error)
}

// client serialises writes; gorilla connections allow one writer at a time.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.conn.Close()
}

// Hub pushes relayed portal events to the browser sockets of live sessions.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc

	source MessageSource
	auth   Resolver
	logger *slog.Logger
}

func NewHub(source MessageSource, auth Resolver, logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		source:      source,
		auth:        auth,
		logger:      logger,
	}
}

// Attach closes a session's sockets as soon as the session ends.
func (h *Hub) Attach(bus *events.Bus) events.Subscription {
	return events.On(bus, "websocket-hub", func(ctx context.Context, ev events.SessionEnded) error {
		h.DisconnectSession(ev.SessionID, ev.Reason)
		return nil
	})
}

// Run forwards broadcast-channel messages to every socket until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	msgs := h.source.Messages(ctx, events.BroadcastChannel)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			h.broadcastAll(data)
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sess, err := h.auth.Resolve(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.registerConnection(sess.ID(), c)

	// A SessionEnded published between Resolve and registration found no
	// socket to close; the handle is revoked before that event is published.
	if !sess.Active() {
		h.DisconnectSession(sess.ID(), "ended")
		return
	}

	go func() {
		defer h.unregisterConnection(sess.ID(), c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) registerConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], c)

	if len(h.connections[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.forwardSession(ctx, sessionID)
	}

	h.logger.Info("websocket connected", "session_id", sessionID, "connections", len(h.connections[sessionID]))
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, other := range conns {
		if other == c {
			h.connections[sessionID] = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}
}

// DisconnectSession tells the session's sockets why it ended and closes them.
func (h *Hub) DisconnectSession(sessionID uuid.UUID, reason string) int {
	h.mu.Lock()
	conns := h.connections[sessionID]
	delete(h.connections, sessionID)
	if cancel, ok := h.cancelFuncs[sessionID]; ok {
		cancel()
		delete(h.cancelFuncs, sessionID)
	}
	h.mu.Unlock()

	if len(conns) == 0 {
		return 0
	}

	data, _ := json.Marshal(models.WSMessage{
		Type:    "session_ended",
		Payload: map[string]string{"reason": reason},
	})
	for _, c := range conns {
		c.write(data)
		c.close(websocket.ClosePolicyViolation, "session ended: "+reason)
	}
	h.logger.Info("websocket sessions closed", "session_id", sessionID, "reason", reason, "connections", len(conns))
	return len(conns)
}

func (h *Hub) forwardSession(ctx context.Context, sessionID uuid.UUID) {
	msgs := h.source.Messages(ctx, events.SessionChannel(sessionID))
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			h.send(sessionID, data)
		}
	}
}

func (h *Hub) send(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
		}
	}
}

func (h *Hub) broadcastAll(data []byte) {
	h.mu.RLock()
	var conns []*client
	for _, cs := range h.connections {
		conns = append(conns, cs...)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.write(data)
	}
}

// Connections reports how many sockets a session holds.
func (h *Hub) Connections(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}
