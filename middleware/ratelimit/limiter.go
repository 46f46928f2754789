package ratelimit

import (
	"context"
	"time"

	"PPRelay/tools/errs"

	"github.com/redis/go-redis/v9"
)

// 滑动窗口：有序集合里每个成员是一次请求，score 为毫秒时间戳。
// 返回 {allowed, remaining, resetAtMs}
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local current = redis.call("ZCARD", key)
if current < limit then
  local seq = redis.call("INCR", key .. ":seq")
  redis.call("ZADD", key, now, now .. ":" .. seq)
  redis.call("PEXPIRE", key, window)
  redis.call("PEXPIRE", key .. ":seq", window)
  return {1, limit - current - 1, now + window}
end
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local reset = now + window
if #oldest >= 2 then
  reset = tonumber(oldest[2]) + window
end
return {0, 0, reset}
`)

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter 按 key 计数；limit<=0 表示不限流。
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return &Result{Allowed: true}, nil
	}
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.rdb, []string{l.prefix + key},
		now.UnixMilli(), l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, errs.ErrStorage.Cause(err, "rate limit script")
	}
	if len(res) != 3 {
		return nil, errs.ErrInternal.WrapMsg("unexpected rate limit reply", "len", len(res))
	}
	return &Result{
		Allowed:   res[0] == 1,
		Limit:     l.limit,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	if err := l.rdb.Del(ctx, l.prefix+key, l.prefix+key+":seq").Err(); err != nil {
		return errs.ErrStorage.Cause(err, "reset rate limit")
	}
	return nil
}
