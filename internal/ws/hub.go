package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/event"
	"github.com/podiumhq/podium/backend/internal/room"
)

// Room key used when a peer's first frame does not name one.
const defaultRoom = "default"

type frame struct {
	client *Client
	env    *event.Envelope
}

// Hub tracks live connections, partitions them into rooms, and runs every
// room-state mutation on a single goroutine, so handlers execute to
// completion with no interleaving.
type Hub struct {
	logger     *zap.Logger
	store      *room.Store
	dispatcher *Dispatcher

	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan *frame
}

func NewHub(store *room.Store, logger *zap.Logger) *Hub {
	h := &Hub{
		logger:     logger,
		store:      store,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *frame, 256),
	}
	h.dispatcher = NewDispatcher(store, h, logger)
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case f := <-h.inbound:
			h.handleFrame(f)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", zap.String("client", c.id), zap.Int("total", total))
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)

	emptied := false
	if c.room != "" {
		if peers, ok := h.rooms[c.room]; ok {
			delete(peers, c)
			if len(peers) == 0 {
				delete(h.rooms, c.room)
				emptied = true
			}
		}
	}
	h.mu.Unlock()

	if c.room == "" {
		h.logger.Info("client disconnected", zap.String("client", c.id))
		return
	}

	h.logger.Info("client disconnected",
		zap.String("client", c.id), zap.String("room", c.room))

	st := h.store.Peek(c.room)
	if st == nil {
		return
	}
	participantID, avatar := c.Identity()
	if st.ReleaseAvatar(avatar, participantID) {
		h.dispatcher.broadcastRoster(c.room, st)
	}
	if emptied {
		st.MarkEmpty()
		h.logger.Info("room empty", zap.String("room", c.room))
	}
}

func (h *Hub) handleFrame(f *frame) {
	c := f.client

	// A disconnect can be serviced before frames the peer queued earlier.
	// Those frames must be dropped: the send channel is already closed,
	// and binding would re-insert a dead peer into the room.
	h.mu.RLock()
	registered := h.clients[c]
	h.mu.RUnlock()
	if !registered {
		return
	}

	if c.room == "" {
		h.bind(c, f.env.Room)
	}
	h.dispatcher.Dispatch(c, f.env)
}

// bind attaches a peer to the room named in its first frame and sends the
// bootstrap snapshot. The binding is permanent; later frames naming a
// different room are relayed within the bound room regardless.
func (h *Hub) bind(c *Client, roomKey string) {
	if roomKey == "" {
		roomKey = defaultRoom
	}
	c.room = roomKey

	h.mu.Lock()
	peers, ok := h.rooms[roomKey]
	if !ok {
		peers = make(map[*Client]bool)
		h.rooms[roomKey] = peers
	}
	peers[c] = true
	count := len(peers)
	h.mu.Unlock()

	st := h.store.Get(roomKey)
	st.MarkOccupied()
	h.dispatcher.Bootstrap(c, st)

	h.logger.Info("client joined room",
		zap.String("client", c.id), zap.String("room", roomKey), zap.Int("peers", count))
}

// Broadcast delivers a frame to every peer in the room. Peers whose send
// buffer is full are dropped; delivery is at-most-once with no retry.
func (h *Hub) Broadcast(roomKey string, data []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.rooms[roomKey] {
		if !client.Send(data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("dropping slow client",
			zap.String("client", client.id), zap.String("room", roomKey))
		h.handleUnregister(client)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetActiveRooms maps each room with at least one peer to its peer count.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for key, peers := range h.rooms {
		active[key] = len(peers)
	}
	return active
}
