package presence

import (
	"hash/fnv"
	"sort"
	"sync"
)

const DefaultShards = 32

// Handle 是一条可推送的连接。注册表只保存、不关闭。
type Handle interface {
	ID() string
	UserID() string
	Send(frame []byte) error
	Close() error
}

// Transition 用户上线（第一条连接）或下线（最后一条连接断开）。
type Transition struct {
	UserID string
	Online bool
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Handle // user -> handleID -> handle
}

// Registry 在线表：userID -> 该用户的全部连接。
// 按 userID 哈希分片，每片一把锁；同一用户的操作串行，不同分片互不阻塞。
type Registry struct {
	shards []*shard

	obsMu     sync.RWMutex
	observers []func(Transition)
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]Handle)}
	}
	return r
}

func (r *Registry) shardOf(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// OnTransition 注册观察者；在分片锁释放后、调用方的 goroutine 里同步执行。
func (r *Registry) OnTransition(f func(Transition)) {
	if f == nil {
		return
	}
	r.obsMu.Lock()
	r.observers = append(r.observers, f)
	r.obsMu.Unlock()
}

func (r *Registry) notify(t Transition) {
	r.obsMu.RLock()
	obs := r.observers
	r.obsMu.RUnlock()
	for _, f := range obs {
		f(t)
	}
}

// Register 把连接挂到用户下。同一个 handle ID 重复注册是幂等的。
// 仅当用户此前没有任何连接时返回 true。
func (r *Registry) Register(userID string, h Handle) bool {
	if userID == "" || h == nil {
		return false
	}
	s := r.shardOf(userID)
	s.mu.Lock()
	set := s.users[userID]
	became := len(set) == 0
	if set == nil {
		set = make(map[string]Handle, 1)
		s.users[userID] = set
	}
	set[h.ID()] = h
	s.mu.Unlock()

	if became {
		r.notify(Transition{UserID: userID, Online: true})
	}
	return became
}

// Unregister 移除一条连接；仅当这次移除清空了用户的连接集合时返回 true。
// 未知用户或连接是空操作。
func (r *Registry) Unregister(userID string, h Handle) bool {
	if userID == "" || h == nil {
		return false
	}
	s := r.shardOf(userID)
	s.mu.Lock()
	set := s.users[userID]
	if _, ok := set[h.ID()]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(set, h.ID())
	went := len(set) == 0
	if went {
		delete(s.users, userID)
	}
	s.mu.Unlock()

	if went {
		r.notify(Transition{UserID: userID, Online: false})
	}
	return went
}

// HandlesFor 返回副本，用户不在线时为 nil。
func (r *Registry) HandlesFor(userID string) []Handle {
	s := r.shardOf(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handle, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardOf(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// OnlineUserIDs 升序快照。
func (r *Registry) OnlineUserIDs() []string {
	out := make([]string, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for uid := range s.users {
			out = append(out, uid)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// AllHandles 所有在线连接的快照，用于全量广播与关停。
func (r *Registry) AllHandles() []Handle {
	var out []Handle
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.users {
			for _, h := range set {
				out = append(out, h)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Len 在线用户数
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}

// HandleCount 在线连接数
func (r *Registry) HandleCount() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.users {
			n += len(set)
		}
		s.mu.RUnlock()
	}
	return n
}
