package chat

import (
	"log"
	"sync"

	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/moderation"
	"github.com/agrichat/community-chat/internal/stats"
)

// ChatServer owns the presence registry, the message store and the
// moderation gate, and tracks every live connection for shutdown.
type ChatServer struct {
	log         *log.Logger
	registry    *Registry
	store       *MessageStore
	gate        *moderation.Gate
	stats       stats.StatsProvider
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
}

func NewChatServer(logger *log.Logger, db database.CommunityRepository, gate *moderation.Gate, su stats.StatsProvider) (*ChatServer, error) {
	for _, metric := range []string{
		stats.ActiveConnections,
		stats.ActiveRooms,
		stats.MessagesSent,
		stats.MessagesBlocked,
	} {
		su.RegisterMetric(metric)
	}

	return &ChatServer{
		log:      logger,
		registry: NewRegistry(su, logger),
		store:    NewMessageStore(db, logger),
		gate:     gate,
		stats:    su,
		clients:  make(map[*Client]struct{}),
	}, nil
}

func (cs *ChatServer) Registry() *Registry {
	return cs.registry
}

func (cs *ChatServer) Store() *MessageStore {
	return cs.store
}

// RegisterClient adds the connection to the server and its room, then
// announces the join to the whole room, new connection included.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.registry.Join(c.roomId, c)
	cs.stats.Incr(stats.ActiveConnections)

	cs.log.Printf("connection from %q joined room %q", c.identity.Email, c.roomId)
	cs.registry.Broadcast(c.roomId, UserJoinedEvent(
		c.identity.Name,
		c.identity.Picture,
		cs.registry.OnlineCount(c.roomId),
	))
}

// DeregisterClient removes the connection and announces the departure
// with the decremented online count. Deregistering a connection that
// was never registered, or twice, is a no-op.
func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	_, ok := cs.clients[c]
	if ok {
		delete(cs.clients, c)
	}
	cs.clientsLock.Unlock()

	if !ok {
		return
	}

	cs.registry.Leave(c.roomId, c)
	cs.stats.Decr(stats.ActiveConnections)

	cs.log.Printf("connection from %q left room %q", c.identity.Email, c.roomId)
	cs.registry.Broadcast(c.roomId, UserLeftEvent(
		c.identity.Name,
		cs.registry.OnlineCount(c.roomId),
	))
}

// Shutdown stops every live connection; each one runs its own cleanup
// on the way out.
func (cs *ChatServer) Shutdown() {
	cs.log.Println("shutting down chat server")

	cs.clientsLock.Lock()
	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.Unlock()

	for _, c := range clients {
		c.stopClient()
	}
}
