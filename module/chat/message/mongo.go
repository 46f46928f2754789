package message

import (
	"context"

	"PPRelay/data/database"
	chatmodel "PPRelay/module/chat/model"
	"PPRelay/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	MsgColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{MsgColl: database.Collection(db, &chatmodel.Message{})}
}

// EnsureIndexes 会话双向查询都走 (sender, receiver, created_at)。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: chatmodel.MsgFieldSenderID, Value: 1},
				{Key: chatmodel.MsgFieldReceiverID, Value: 1},
				{Key: chatmodel.MsgFieldCreatedAt, Value: -1},
			},
			Options: options.Index().SetName("idx_pair_created"),
		},
	})
	if err != nil {
		return errs.ErrStorage.Cause(err, "ensure message indexes")
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, m *chatmodel.Message) (*chatmodel.Message, error) {
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return nil, errs.ErrStorage.Cause(err, "insert message", "sender", m.SenderID, "receiver", m.ReceiverID)
	}
	return m, nil
}

func (s *MongoStore) History(ctx context.Context, userA, userB string, q HistoryQuery) ([]*chatmodel.Message, error) {
	q = q.Normalize()
	filter := bson.M{
		"$or": bson.A{
			bson.M{chatmodel.MsgFieldSenderID: userA, chatmodel.MsgFieldReceiverID: userB},
			bson.M{chatmodel.MsgFieldSenderID: userB, chatmodel.MsgFieldReceiverID: userA},
		},
	}
	if !q.Before.IsZero() {
		filter[chatmodel.MsgFieldCreatedAt] = bson.M{"$lt": q.Before}
	}
	// 倒序取最新 Limit 条，再翻转成升序
	opts := options.Find().
		SetSort(bson.D{{Key: chatmodel.MsgFieldCreatedAt, Value: -1}, {Key: chatmodel.MsgFieldID, Value: -1}}).
		SetLimit(int64(q.Limit))

	cur, err := s.MsgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.ErrStorage.Cause(err, "find history", "a", userA, "b", userB)
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		_ = cur.Close(ctx)
	}(cur, ctx)

	out := make([]*chatmodel.Message, 0, q.Limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStorage.Cause(err, "decode history", "a", userA, "b", userB)
	}
	reverse(out)
	return out, nil
}

func reverse(ms []*chatmodel.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
