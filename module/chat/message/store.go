//go:generate go run go.uber.org/mock/mockgen -destination=../../../mocks/mock_store.go -package=mocks PPRelay/module/chat/message Store

package message

import (
	"context"
	"time"

	chatmodel "PPRelay/module/chat/model"
)

const (
	DefaultHistoryLimit = 200
	MaxHistoryLimit     = 500
)

// HistoryQuery 翻页参数：Before 为零值表示从最新开始。
type HistoryQuery struct {
	Before time.Time
	Limit  int
}

// Normalize 把 Limit 收敛到 [1, MaxHistoryLimit]，0 取默认值。
func (q HistoryQuery) Normalize() HistoryQuery {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		q.Limit = MaxHistoryLimit
	}
	return q
}

// Store 消息的持久化。所有错误都包装为 errs.ErrStorage。
type Store interface {
	// Save 持久化后返回同一条消息；失败时消息不存在于历史中。
	Save(ctx context.Context, m *chatmodel.Message) (*chatmodel.Message, error)
	// History 两个用户之间双向的消息，按 CreatedAt 升序，取 Before 之前最新的 Limit 条。
	History(ctx context.Context, userA, userB string, q HistoryQuery) ([]*chatmodel.Message, error)
}
