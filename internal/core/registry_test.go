package core

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AdmitEvictFlags(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	d1 := NewClient("alice", 1)
	d2 := NewClient("alice", 1)

	req.True(r.Admit(d1), "first device makes the user present")
	req.False(r.Admit(d1), "admitting the same client twice is a no-op")
	req.False(r.Admit(d2))
	req.True(r.Online("alice"))

	req.False(r.Evict(d1))
	req.True(r.Online("alice"))
	req.True(r.Evict(d2), "last device leaves")
	req.False(r.Online("alice"))
	req.False(r.Evict(d2), "second evict is a no-op")
	req.Equal(0, r.UserCount())
}

func TestRegistry_EvictUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	never := NewClient("ghost", 1)

	require.False(t, r.Evict(never))
	require.False(t, r.Online("ghost"))
}

func TestRegistry_HandlesForDedupesAndSkipsOffline(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a1 := NewClient("alice", 1)
	a2 := NewClient("alice", 1)
	b1 := NewClient("bob", 1)
	r.Admit(a1)
	r.Admit(a2)
	r.Admit(b1)

	got := r.HandlesFor([]string{"alice", "bob", "alice", "carol"})
	req.ElementsMatch([]*Client{a1, a2, b1}, got)
	req.Empty(r.HandlesFor([]string{"carol"}))
}

// Presence in the registry must match a simple per-user counter model
// for arbitrary admit/evict sequences.
func TestRegistry_PresenceMatchesModel(t *testing.T) {
	req := require.New(t)
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry()

	users := []string{"u0", "u1", "u2", "u3", "u4"}
	live := map[string][]*Client{}

	for step := 0; step < 5000; step++ {
		user := users[rng.Intn(len(users))]
		if rng.Intn(2) == 0 || len(live[user]) == 0 {
			c := NewClient(user, 1)
			first := r.Admit(c)
			req.Equal(len(live[user]) == 0, first, "step %d", step)
			live[user] = append(live[user], c)
		} else {
			i := rng.Intn(len(live[user]))
			c := live[user][i]
			live[user] = append(live[user][:i], live[user][i+1:]...)
			last := r.Evict(c)
			req.Equal(len(live[user]) == 0, last, "step %d", step)
		}

		present := 0
		for _, u := range users {
			req.Equal(len(live[u]) > 0, r.Online(u), "step %d user %s", step, u)
			if len(live[u]) > 0 {
				present++
			}
		}
		req.Equal(present, r.UserCount())
	}
}

func TestRegistry_ConcurrentAdmitEvict(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", g%4)
			for i := 0; i < 200; i++ {
				c := NewClient(user, 1)
				r.Admit(c)
				r.Evict(c)
			}
		}(g)
	}
	wg.Wait()

	require.Equal(t, 0, r.UserCount())
}
