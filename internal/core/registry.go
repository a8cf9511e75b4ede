package core

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

type userShard struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

// Registry maps user IDs to their live clients. A user is present
// exactly when it holds at least one client; empty sets are removed.
type Registry struct {
	shards [shardCount]*userShard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &userShard{users: make(map[string]map[*Client]struct{})}
	}
	return r
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

func (r *Registry) shard(userID string) *userShard {
	return r.shards[shardIndex(userID)]
}

// Admit adds c to its user's set. It reports whether c is the user's
// first live client. Admitting the same client twice is a no-op.
func (r *Registry) Admit(c *Client) (first bool) {
	s := r.shard(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		s.users[c.UserID] = set
	}
	if _, exists := set[c]; exists {
		return false
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// Evict removes c from its user's set. It reports true only when this call
// removed the user's last client. Evicting an unknown client is a no-op.
func (r *Registry) Evict(c *Client) (last bool) {
	s := r.shard(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[c.UserID]
	if !ok {
		return false
	}
	if _, exists := set[c]; !exists {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.users, c.UserID)
		return true
	}
	return false
}

// Online reports whether the user has at least one live client.
func (r *Registry) Online(userID string) bool {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// HandlesFor returns the live clients of all given users, each once.
// Users without clients contribute nothing.
func (r *Registry) HandlesFor(userIDs []string) []*Client {
	seen := make(map[*Client]struct{})
	var out []*Client
	for _, id := range userIDs {
		s := r.shard(id)
		s.mu.RLock()
		for c := range s.users[id] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
		s.mu.RUnlock()
	}
	return out
}

// UserCount returns the number of users currently present.
func (r *Registry) UserCount() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}
