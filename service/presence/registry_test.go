package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id, user string
	closed   atomic.Bool
}

func newHandle(id, user string) *fakeHandle { return &fakeHandle{id: id, user: user} }

func (h *fakeHandle) ID() string        { return h.id }
func (h *fakeHandle) UserID() string    { return h.user }
func (h *fakeHandle) Send([]byte) error { return nil }

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func TestRegistry_RegisterTransitions(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(4)
	h1, h2 := newHandle("h1", "alice"), newHandle("h2", "alice")

	// first handle brings the user online
	req.True(r.Register("alice", h1))
	// second handle and a repeat registration do not
	req.False(r.Register("alice", h2))
	req.False(r.Register("alice", h1))

	req.Len(r.HandlesFor("alice"), 2)
	req.Equal([]string{"alice"}, r.OnlineUserIDs())
	req.Equal(1, r.Len())
	req.Equal(2, r.HandleCount())
}

func TestRegistry_UnregisterTransitions(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(4)
	h1, h2 := newHandle("h1", "alice"), newHandle("h2", "alice")
	r.Register("alice", h1)
	r.Register("alice", h2)

	req.False(r.Unregister("alice", h1))
	req.True(r.IsOnline("alice"))
	req.True(r.Unregister("alice", h2))
	req.False(r.IsOnline("alice"))
	req.Nil(r.HandlesFor("alice"))
	req.Empty(r.OnlineUserIDs())

	// unknown user / handle is a no-op
	req.False(r.Unregister("alice", h2))
	req.False(r.Unregister("bob", h1))
	// registry never closes handles
	req.False(h1.closed.Load())
}

func TestRegistry_UnregisterForeignHandleKeepsUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(1)
	r.Register("alice", newHandle("h1", "alice"))

	req.False(r.Unregister("alice", newHandle("other", "alice")))
	req.True(r.IsOnline("alice"))
}

func TestRegistry_InvalidInputIsTotal(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(0)
	req.False(r.Register("", newHandle("h1", "")))
	req.False(r.Register("alice", nil))
	req.False(r.Unregister("", nil))
	req.Empty(r.OnlineUserIDs())
	req.Len(r.shards, DefaultShards)
}

func TestRegistry_OnlineUserIDsSorted(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8)
	for _, u := range []string{"carol", "alice", "bob"} {
		r.Register(u, newHandle("h-"+u, u))
	}
	req.Equal([]string{"alice", "bob", "carol"}, r.OnlineUserIDs())
	req.Len(r.AllHandles(), 3)
}

func TestRegistry_ObserversSeeTransitionsOnly(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(4)
	var got []Transition
	r.OnTransition(func(tr Transition) {
		// lock is released: reading the registry here must not deadlock
		_ = r.OnlineUserIDs()
		got = append(got, tr)
	})

	h1, h2 := newHandle("h1", "alice"), newHandle("h2", "alice")
	r.Register("alice", h1)
	r.Register("alice", h2)
	r.Unregister("alice", h1)
	r.Unregister("alice", h2)

	req.Equal([]Transition{{UserID: "alice", Online: true}, {UserID: "alice", Online: false}}, got)
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8)
	var online, offline atomic.Int64
	r.OnTransition(func(tr Transition) {
		if tr.Online {
			online.Add(1)
		} else {
			offline.Add(1)
		}
	})

	const users, perUser = 20, 10
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u, i int) {
				defer wg.Done()
				uid := fmt.Sprintf("u%02d", u)
				h := newHandle(fmt.Sprintf("%s-%d", uid, i), uid)
				r.Register(uid, h)
				r.Unregister(uid, h)
			}(u, i)
		}
	}
	wg.Wait()

	// every user ends offline, and transitions pair up exactly
	req.Zero(r.Len())
	req.Equal(online.Load(), offline.Load())
	req.GreaterOrEqual(online.Load(), int64(users))
}
