package message

import (
	"context"
	"errors"
	"testing"
	"time"

	chatmodel "PPRelay/module/chat/model"
	"PPRelay/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestHistoryQuery_Normalize(t *testing.T) {
	req := require.New(t)
	req.Equal(DefaultHistoryLimit, HistoryQuery{}.Normalize().Limit)
	req.Equal(DefaultHistoryLimit, HistoryQuery{Limit: -3}.Normalize().Limit)
	req.Equal(MaxHistoryLimit, HistoryQuery{Limit: 10_000}.Normalize().Limit)
	req.Equal(7, HistoryQuery{Limit: 7}.Normalize().Limit)
}

func TestMemoryStore_HistoryBothDirectionsInSendOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()

	_, _ = s.Save(ctx, chatmodel.NewMessage("a", "b", "hi", "", t0))
	_, _ = s.Save(ctx, chatmodel.NewMessage("b", "a", "hey", "", t0.Add(time.Second)))
	_, _ = s.Save(ctx, chatmodel.NewMessage("a", "c", "other", "", t0.Add(2*time.Second)))
	_, _ = s.Save(ctx, chatmodel.NewMessage("a", "b", "still there?", "", t0.Add(3*time.Second)))

	got, err := s.History(ctx, "b", "a", HistoryQuery{})
	req.NoError(err)
	req.Len(got, 3)
	req.Equal([]string{"hi", "hey", "still there?"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestMemoryStore_HistoryPaging(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()
	for i, text := range []string{"1", "2", "3", "4"} {
		_, _ = s.Save(ctx, chatmodel.NewMessage("a", "b", text, "", t0.Add(time.Duration(i)*time.Second)))
	}

	// newest two
	got, err := s.History(ctx, "a", "b", HistoryQuery{Limit: 2})
	req.NoError(err)
	req.Equal("3", got[0].Text)
	req.Equal("4", got[1].Text)

	// the page before those
	got, err = s.History(ctx, "a", "b", HistoryQuery{Limit: 2, Before: got[0].CreatedAt})
	req.NoError(err)
	req.Equal("1", got[0].Text)
	req.Equal("2", got[1].Text)
}

func TestMemoryStore_SaveOutOfOrderKeepsTimestampOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()

	// Given: 两个并发发送，较晚时间戳的消息先落库
	late := chatmodel.NewMessage("a", "b", "second", "", t0.Add(time.Second))
	early := chatmodel.NewMessage("b", "a", "first", "", t0)
	_, _ = s.Save(ctx, late)
	_, _ = s.Save(ctx, early)
	_, _ = s.Save(ctx, chatmodel.NewMessage("a", "b", "third", "", t0.Add(2*time.Second)))

	// Then: 历史仍按时间升序
	got, err := s.History(ctx, "a", "b", HistoryQuery{})
	req.NoError(err)
	req.Equal([]string{"first", "second", "third"}, []string{got[0].Text, got[1].Text, got[2].Text})

	// 分页以时间为准，不受到达顺序影响
	got, err = s.History(ctx, "a", "b", HistoryQuery{Limit: 1, Before: late.CreatedAt})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("first", got[0].Text)
}

func TestMemoryStore_FailNext(t *testing.T) {
	req := require.New(t)
	s := NewMemoryStore()
	s.FailNext = errs.ErrStorage.WrapMsg("disk full")

	_, err := s.Save(context.Background(), chatmodel.NewMessage("a", "b", "hi", "", time.Now()))
	req.True(errors.Is(err, errs.ErrStorage))
	req.Zero(s.Len())

	_, err = s.Save(context.Background(), chatmodel.NewMessage("a", "b", "hi", "", time.Now()))
	req.NoError(err)
	req.Equal(1, s.Len())
}

func TestNewMessage_Timestamps(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600))
	m := chatmodel.NewMessage("a", "b", "hi", "img.png", now)
	req.Equal(time.UTC, m.CreatedAt.Location())
	req.Equal(123000000, m.CreatedAt.Nanosecond())
	req.Equal(m.CreatedAt, m.UpdatedAt)
	req.False(m.ID.IsZero())
}
