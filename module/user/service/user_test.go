package service

import (
	"context"
	"errors"
	"testing"

	usermodel "PPRelay/module/user/model"
	"PPRelay/tools/errs"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMemoryDirectory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice := &usermodel.User{Username: "alice", Email: "a@x.io"}
	bob := &usermodel.User{Username: "bob", Email: "b@x.io"}
	d := NewMemoryDirectory(bob, alice)

	ok, err := d.Exists(ctx, alice.GetUserID())
	req.NoError(err)
	req.True(ok)
	ok, err = d.Exists(ctx, primitive.NewObjectID().Hex())
	req.NoError(err)
	req.False(ok)

	others, err := d.ListExcept(ctx, alice.GetUserID())
	req.NoError(err)
	req.Len(others, 1)
	req.Equal("bob", others[0].Username)

	d.Err = errs.ErrStorage.WrapMsg("down")
	_, err = d.Exists(ctx, alice.GetUserID())
	req.True(errors.Is(err, errs.ErrStorage))
}

func TestMongoDirectory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("exists", func(mt *mtest.T) {
		req := require.New(mt)
		d := &MongoDirectory{UserColl: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		// CountDocuments runs an aggregate that yields {n: 1}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))

		ok, err := d.Exists(context.Background(), primitive.NewObjectID().Hex())
		req.NoError(err)
		req.True(ok)
	})

	mt.Run("malformed id never hits the database", func(mt *mtest.T) {
		d := &MongoDirectory{UserColl: mt.Coll}
		ok, err := d.Exists(context.Background(), "not-an-id")
		require.NoError(mt, err)
		require.False(mt, ok)
	})

	mt.Run("exists failure is a storage error", func(mt *mtest.T) {
		d := &MongoDirectory{UserColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "boom", Name: "InternalError"}))
		_, err := d.Exists(context.Background(), primitive.NewObjectID().Hex())
		require.True(mt, errors.Is(err, errs.ErrStorage))
	})

	mt.Run("list except", func(mt *mtest.T) {
		req := require.New(mt)
		d := &MongoDirectory{UserColl: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		bobID := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: bobID}, {Key: "username", Value: "bob"}, {Key: "email", Value: "b@x.io"}},
		))

		users, err := d.ListExcept(context.Background(), primitive.NewObjectID().Hex())
		req.NoError(err)
		req.Len(users, 1)
		req.Equal(bobID, users[0].ID)
		req.Equal("bob", users[0].Username)
	})
}
