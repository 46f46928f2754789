package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const UserTableName = "users"

const (
	UserFieldID       = "_id"
	UserFieldUsername = "username"
	UserFieldEmail    = "email"
)

// User 用户主档里 relay 关心的部分；密码等字段不读出。
type User struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Username  string             `bson:"username" json:"username"`
	Email     string             `bson:"email" json:"email"`
	CreatedAt time.Time          `bson:"created_at,omitempty" json:"createdAt,omitempty"`
}

func (u *User) GetTableName() string {
	return UserTableName
}

func (u *User) GetUserID() string {
	return u.ID.Hex()
}
