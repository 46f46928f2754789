//go:generate go run go.uber.org/mock/mockgen -destination=../../../mocks/mock_directory.go -package=mocks PPRelay/module/user/service Directory

package service

import (
	"context"
	"sort"
	"sync"

	"PPRelay/data/database"
	usermodel "PPRelay/module/user/model"
	"PPRelay/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Directory 用户目录：判断收件人是否存在、列出联系人。
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	ListExcept(ctx context.Context, userID string) ([]*usermodel.User, error)
}

type MongoDirectory struct {
	UserColl *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{UserColl: database.Collection(db, &usermodel.User{})}
}

func (d *MongoDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	n, err := d.UserColl.CountDocuments(ctx, bson.M{usermodel.UserFieldID: oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.ErrStorage.Cause(err, "count user", "user", userID)
	}
	return n > 0, nil
}

func (d *MongoDirectory) ListExcept(ctx context.Context, userID string) ([]*usermodel.User, error) {
	filter := bson.M{}
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		filter[usermodel.UserFieldID] = bson.M{"$ne": oid}
	}
	opts := options.Find().
		SetProjection(bson.M{usermodel.UserFieldID: 1, usermodel.UserFieldUsername: 1, usermodel.UserFieldEmail: 1, "created_at": 1}).
		SetSort(bson.D{{Key: usermodel.UserFieldUsername, Value: 1}})

	cur, err := d.UserColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.ErrStorage.Cause(err, "find users")
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		_ = cur.Close(ctx)
	}(cur, ctx)

	out := make([]*usermodel.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStorage.Cause(err, "decode users")
	}
	return out, nil
}

// MemoryDirectory 进程内目录，测试和本地调试用。
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*usermodel.User
	// Err 非空时所有查询返回它
	Err error
}

func NewMemoryDirectory(users ...*usermodel.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*usermodel.User)}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

func (d *MemoryDirectory) Add(u *usermodel.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	d.users[u.ID.Hex()] = u
}

func (d *MemoryDirectory) Exists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return false, d.Err
	}
	_, ok := d.users[userID]
	return ok, nil
}

func (d *MemoryDirectory) ListExcept(_ context.Context, userID string) ([]*usermodel.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]*usermodel.User, 0, len(d.users))
	for id, u := range d.users {
		if id != userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
