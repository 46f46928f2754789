package message

import (
	"bytes"
	"context"
	"sort"
	"sync"

	chatmodel "PPRelay/module/chat/model"

	"github.com/samber/lo"
)

// MemoryStore 进程内实现，用于测试与无 Mongo 的本地调试。
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []*chatmodel.Message // 按 (CreatedAt, ID) 升序，与 Mongo 的排序键一致
	// FailNext 非空时下一次 Save 返回该错误
	FailNext error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, m *chatmodel.Message) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return nil, err
	}
	cp := *m
	// 并发发送时 Save 的到达顺序可能与时间戳不一致
	i := sort.Search(len(s.msgs), func(i int) bool { return msgLess(&cp, s.msgs[i]) })
	s.msgs = append(s.msgs, nil)
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = &cp
	return m, nil
}

func msgLess(a, b *chatmodel.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (s *MemoryStore) History(_ context.Context, userA, userB string, q HistoryQuery) ([]*chatmodel.Message, error) {
	q = q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := lo.Filter(s.msgs, func(m *chatmodel.Message, _ int) bool {
		pair := (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA)
		return pair && (q.Before.IsZero() || m.CreatedAt.Before(q.Before))
	})
	if len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	return lo.Map(matched, func(m *chatmodel.Message, _ int) *chatmodel.Message {
		cp := *m
		return &cp
	}), nil
}

// Len 测试辅助
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
