package chat

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recHandle 记录收到的帧；fail=true 时模拟已断开的连接
type recHandle struct {
	id, user string
	fail     atomic.Bool
	closed   atomic.Bool

	mu     sync.Mutex
	frames []Frame
}

func newRec(id, user string) *recHandle { return &recHandle{id: id, user: user} }

func (h *recHandle) ID() string     { return h.id }
func (h *recHandle) UserID() string { return h.user }

func (h *recHandle) Send(b []byte) error {
	if h.fail.Load() || h.closed.Load() {
		return ErrHandleClosed
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()
	return nil
}

func (h *recHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *recHandle) events(event string) []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Frame
	for _, f := range h.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// lastOnline 最近一次收到的 onlineUsers 列表
func (h *recHandle) lastOnline() []string {
	fs := h.events(EventOnlineUsers)
	if len(fs) == 0 {
		return nil
	}
	out := []string{}
	for _, v := range fs[len(fs)-1].Data.([]any) {
		out = append(out, v.(string))
	}
	return out
}

func waitOnline(t *testing.T, h *recHandle, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	require.Eventually(t, func() bool {
		got := h.lastOnline()
		return got != nil && equalStrings(got, want)
	}, 2*time.Second, 5*time.Millisecond, "handle %s never saw online set %v", h.id, want)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type pubCall struct {
	biz string
	v   any
	hdr map[string]string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []pubCall
	err   error
}

func (p *fakePublisher) PublishJSON(_ context.Context, biz string, v any, hdr map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pubCall{biz: biz, v: v, hdr: hdr})
	return p.err
}

func (p *fakePublisher) count(biz string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.biz == biz {
			n++
		}
	}
	return n
}

func oid() string { return primitive.NewObjectID().Hex() }
