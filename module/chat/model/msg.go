package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MsgTableName = "messages"

// 字段名集中定义，查询与索引共用
const (
	MsgFieldID         = "_id"
	MsgFieldSenderID   = "sender_id"
	MsgFieldReceiverID = "receiver_id"
	MsgFieldCreatedAt  = "created_at"
)

// Message 一条已持久化的单聊消息，保存后不可变。
type Message struct {
	ID         primitive.ObjectID `bson:"_id" json:"_id"`
	SenderID   string             `bson:"sender_id" json:"senderId"`
	ReceiverID string             `bson:"receiver_id" json:"receiverId"`
	Text       string             `bson:"text" json:"text"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"` // 附件引用（URL）
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

func (m *Message) GetTableName() string {
	return MsgTableName
}

// NewMessage 分配 ID 与服务端时间（UTC，毫秒精度，与 Mongo 存储精度一致）。
func NewMessage(senderID, receiverID, text, image string, now time.Time) *Message {
	ts := now.UTC().Truncate(time.Millisecond)
	return &Message{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}
