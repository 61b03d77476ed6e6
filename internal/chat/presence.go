package chat

import (
	"log"
	"sync"

	"github.com/agrichat/community-chat/internal/stats"
	"github.com/agrichat/community-chat/internal/types"
)

// Registry tracks which connections are live in each room. It is
// process-local and never persisted; a horizontally scaled deployment
// needs an external fan-out layer in front of it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	stats stats.StatsProvider
	log   *log.Logger
}

func NewRegistry(su stats.StatsProvider, logger *log.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]map[*Client]struct{}),
		stats: su,
		log:   logger,
	}
}

func (reg *Registry) Join(roomId string, c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	clients, ok := reg.rooms[roomId]
	if !ok {
		clients = make(map[*Client]struct{})
		reg.rooms[roomId] = clients
		reg.stats.Incr(stats.ActiveRooms)
	}

	clients[c] = struct{}{}
}

// Leave removes the connection from the room's set. Removing an absent
// connection is a no-op.
func (reg *Registry) Leave(roomId string, c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	clients, ok := reg.rooms[roomId]
	if !ok {
		return
	}

	if _, ok := clients[c]; !ok {
		return
	}

	delete(clients, c)
	if len(clients) == 0 {
		delete(reg.rooms, roomId)
		reg.stats.Decr(stats.ActiveRooms)
	}
}

// Broadcast delivers the event to every live connection in the room.
// Delivery is best-effort per recipient: a full or dead peer is skipped
// and cleaned up by its own disconnect path, never by the broadcaster.
func (reg *Registry) Broadcast(roomId string, evt *ServerEvent) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for c := range reg.rooms[roomId] {
		if !c.queueEvent(evt) {
			reg.log.Printf("dropping %q event for slow connection in room %q", evt.Type, roomId)
		}
	}
}

func (reg *Registry) OnlineUsers(roomId string) []types.OnlineUser {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	users := make([]types.OnlineUser, 0, len(reg.rooms[roomId]))
	for c := range reg.rooms[roomId] {
		users = append(users, types.OnlineUser{
			Email:   c.identity.Email,
			Name:    c.identity.Name,
			Picture: c.identity.Picture,
		})
	}

	return users
}

func (reg *Registry) OnlineCount(roomId string) int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms[roomId])
}
