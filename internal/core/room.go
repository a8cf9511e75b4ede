package core

import "sync"

// Room groups clients subscribed to the same conversation.
type Room struct {
	ID      string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// Rooms is the process-wide room membership table. Membership is per
// client, independent of user identity. Empty rooms are dropped.
type Rooms struct {
	shards [shardCount]*roomShard
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	t := &Rooms{}
	for i := range t.shards {
		t.shards[i] = &roomShard{rooms: make(map[string]*Room)}
	}
	return t
}

func (t *Rooms) shard(roomID string) *roomShard {
	return t.shards[shardIndex(roomID)]
}

// Join subscribes c to roomID. Idempotent. Returns false if c is closed.
func (t *Rooms) Join(c *Client, roomID string) bool {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	if c.Closed() {
		return false
	}

	s := t.shard(roomID)
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = NewRoom(roomID)
		s.rooms[roomID] = room
	}
	room.AddClient(c)
	s.mu.Unlock()

	c.rooms[roomID] = struct{}{}
	return true
}

// Leave unsubscribes c from roomID. Idempotent.
func (t *Rooms) Leave(c *Client, roomID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	t.remove(c, roomID)
	delete(c.rooms, roomID)
}

// LeaveAll removes c from every room it joined. Call after c.Close so no
// join can race in afterwards.
func (t *Rooms) LeaveAll(c *Client) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	for roomID := range c.rooms {
		t.remove(c, roomID)
	}
	c.rooms = make(map[string]struct{})
}

func (t *Rooms) remove(c *Client, roomID string) {
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	room.RemoveClient(c)
	if room.Empty() {
		delete(s.rooms, roomID)
	}
}

// Size returns the number of clients joined to roomID.
func (t *Rooms) Size(roomID string) int {
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return len(room.clients)
	}
	return 0
}

// broadcast sends ev to every client in roomID plus extra, each client once,
// skipping except. Sends happen under the room lock so all clients observe
// events of one room in dispatch order.
func (t *Rooms) broadcast(roomID string, ev *Event, except *Client, extra []*Client) (sent, dropped int) {
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	deliver := func(c *Client) {
		if c == except {
			return
		}
		if c.Send(ev) {
			sent++
		} else {
			dropped++
		}
	}

	room := s.rooms[roomID]
	if room != nil {
		for c := range room.clients {
			deliver(c)
		}
	}
	for _, c := range extra {
		if room != nil {
			if _, inRoom := room.clients[c]; inRoom {
				continue
			}
		}
		deliver(c)
	}
	return sent, dropped
}
