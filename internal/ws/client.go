package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/event"
	"github.com/podiumhq/podium/backend/internal/ratelimit"
)

const (
	writeWait = 10 * time.Second

	// A peer that misses pongs for two ping intervals hits its read
	// deadline and is torn down.
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod

	maxMessageSize  = 64 * 1024
	sendBufferSize  = 256
	framesPerSecond = 50
	frameBurst      = 100
	dropAfterAbuse  = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live connection. It stays unbound until its first frame
// names a room; from then on it belongs to that room for its lifetime.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	logger  *zap.Logger
	send    chan []byte
	id      string
	limiter *ratelimit.Bucket

	// Bound once and mutated only on the hub goroutine.
	room          string
	participantID string
	avatar        string
}

// ServeWs upgrades an HTTP request and starts the connection's pumps.
func ServeWs(hub *Hub, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		logger:  logger,
		send:    make(chan []byte, sendBufferSize),
		id:      uuid.NewString(),
		limiter: ratelimit.New(framesPerSecond, frameBurst),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) ID() string { return c.id }

func (c *Client) Room() string { return c.room }

func (c *Client) Identity() (participantID, avatar string) {
	return c.participantID, c.avatar
}

func (c *Client) SetIdentity(participantID, avatar string) {
	c.participantID = participantID
	c.avatar = avatar
}

// Send enqueues a frame without blocking. False means the peer's buffer is
// full and it should be dropped.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limited := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read error", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			limited++
			if limited%100 == 1 {
				c.logger.Warn("rate limit exceeded",
					zap.String("client", c.id), zap.Int("dropped", limited))
			}
			if limited > dropAfterAbuse {
				c.logger.Warn("disconnecting abusive client", zap.String("client", c.id))
				return
			}
			continue
		}

		env, err := event.Decode(data)
		if err != nil {
			// Lenient protocol: bad frames are dropped, the
			// connection stays up.
			c.logger.Debug("dropped frame", zap.String("client", c.id), zap.Error(err))
			continue
		}

		c.hub.inbound <- &frame{client: c, env: env}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
