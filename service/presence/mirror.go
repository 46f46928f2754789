package presence

import (
	"context"
	"errors"

	"PPRelay/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Mirror 把本节点的在线集合同步到外部存储，供其他节点/运维查询。
// 尽力而为：失败只影响镜像，不影响本地推送。
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Lookup(ctx context.Context, userID string) (node string, online bool, err error)
	OnlineUsers(ctx context.Context) ([]string, error)
	// Clear 移除本节点写入的全部条目（关停时调用）
	Clear(ctx context.Context) error
}

const (
	presenceHash = "relay:presence" // field=userID value=nodeID
	nodeSetFmt   = "relay:node:"    // + nodeID + ":users"
)

// 只删除属于本节点的条目，其他节点后写入的不动
var offlineScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
  redis.call("HDEL", KEYS[1], ARGV[1])
end
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`)

var clearScript = redis.NewScript(`
local users = redis.call("SMEMBERS", KEYS[2])
local n = 0
for _, u in ipairs(users) do
  if redis.call("HGET", KEYS[1], u) == ARGV[1] then
    redis.call("HDEL", KEYS[1], u)
    n = n + 1
  end
end
redis.call("DEL", KEYS[2])
return n
`)

type RedisMirror struct {
	rdb    redis.UniversalClient
	nodeID string
}

func NewRedisMirror(rdb redis.UniversalClient, nodeID string) *RedisMirror {
	return &RedisMirror{rdb: rdb, nodeID: nodeID}
}

func (m *RedisMirror) nodeKey() string { return nodeSetFmt + m.nodeID + ":users" }

func (m *RedisMirror) SetOnline(ctx context.Context, userID string) error {
	_, err := m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, presenceHash, userID, m.nodeID)
		p.SAdd(ctx, m.nodeKey(), userID)
		return nil
	})
	if err != nil {
		return errs.ErrStorage.Cause(err, "presence mirror online", "user", userID)
	}
	return nil
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string) error {
	if err := offlineScript.Run(ctx, m.rdb, []string{presenceHash, m.nodeKey()}, userID, m.nodeID).Err(); err != nil {
		return errs.ErrStorage.Cause(err, "presence mirror offline", "user", userID)
	}
	return nil
}

func (m *RedisMirror) Lookup(ctx context.Context, userID string) (string, bool, error) {
	node, err := m.rdb.HGet(ctx, presenceHash, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.ErrStorage.Cause(err, "presence mirror lookup", "user", userID)
	}
	return node, true, nil
}

func (m *RedisMirror) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := m.rdb.HKeys(ctx, presenceHash).Result()
	if err != nil {
		return nil, errs.ErrStorage.Cause(err, "presence mirror list")
	}
	return users, nil
}

func (m *RedisMirror) Clear(ctx context.Context) error {
	if err := clearScript.Run(ctx, m.rdb, []string{presenceHash, m.nodeKey()}, m.nodeID).Err(); err != nil {
		return errs.ErrStorage.Cause(err, "presence mirror clear", "node", m.nodeID)
	}
	return nil
}

// NopMirror 未配置 Redis 时使用。
type NopMirror struct{}

func (NopMirror) SetOnline(context.Context, string) error  { return nil }
func (NopMirror) SetOffline(context.Context, string) error { return nil }
func (NopMirror) Lookup(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (NopMirror) OnlineUsers(context.Context) ([]string, error) { return nil, nil }
func (NopMirror) Clear(context.Context) error                   { return nil }
