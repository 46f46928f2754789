package message

import (
	"context"
	"errors"
	"testing"
	"time"

	chatmodel "PPRelay/module/chat/model"
	"PPRelay/tools/errs"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func msgDoc(id primitive.ObjectID, from, to, text string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: chatmodel.MsgFieldSenderID, Value: from},
		{Key: chatmodel.MsgFieldReceiverID, Value: to},
		{Key: "text", Value: text},
		{Key: chatmodel.MsgFieldCreatedAt, Value: at},
		{Key: "updated_at", Value: at},
	}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("save ok", func(mt *mtest.T) {
		req := require.New(mt)
		store := &MongoStore{MsgColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		m := chatmodel.NewMessage("a", "b", "hi", "", time.Now())
		got, err := store.Save(context.Background(), m)
		req.NoError(err)
		req.Equal(m, got)
	})

	mt.Run("save failure is a storage error", func(mt *mtest.T) {
		req := require.New(mt)
		store := &MongoStore{MsgColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		_, err := store.Save(context.Background(), chatmodel.NewMessage("a", "b", "hi", "", time.Now()))
		req.True(errors.Is(err, errs.ErrStorage))
	})

	mt.Run("history returns ascending order", func(mt *mtest.T) {
		req := require.New(mt)
		store := &MongoStore{MsgColl: mt.Coll}
		t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		id1, id2 := primitive.NewObjectIDFromTimestamp(t0), primitive.NewObjectIDFromTimestamp(t0.Add(time.Second))
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		// the server answers newest first
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			msgDoc(id2, "b", "a", "yo", t0.Add(time.Second)),
			msgDoc(id1, "a", "b", "hi", t0),
		))

		got, err := store.History(context.Background(), "a", "b", HistoryQuery{})
		req.NoError(err)
		req.Len(got, 2)
		req.Equal("hi", got[0].Text)
		req.Equal("yo", got[1].Text)
		req.Equal(id1, got[0].ID)
	})

	mt.Run("history failure is a storage error", func(mt *mtest.T) {
		req := require.New(mt)
		store := &MongoStore{MsgColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "boom", Name: "InternalError"}))

		_, err := store.History(context.Background(), "a", "b", HistoryQuery{Limit: 10})
		req.True(errors.Is(err, errs.ErrStorage))
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		store := &MongoStore{MsgColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, store.EnsureIndexes(context.Background()))
	})
}
