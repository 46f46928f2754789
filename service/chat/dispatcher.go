package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"PPRelay/logger"
	chatmsg "PPRelay/module/chat/message"
	chatmodel "PPRelay/module/chat/model"
	usersvc "PPRelay/module/user/service"
	"PPRelay/service/natsx"
	"PPRelay/service/presence"
	"PPRelay/tools/errs"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SendRequest SenderID 来自身份解析，其余字段由调用方提供。
type SendRequest struct {
	SenderID   string `json:"-" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required,objectid,nefield=SenderID"`
	Text       string `json:"text" validate:"required,max=10000"`
	Image      string `json:"image,omitempty" validate:"omitempty,max=2048"`
}

type DispatcherConf struct {
	NodeID    string
	Directory usersvc.Directory // 可空：为空时不校验收件人是否存在
	Publisher Publisher
	Now       func() time.Time
}

// Dispatcher 单聊中继：校验 -> 落库 -> 查在线 -> 推送。
// 推送失败只清理该连接，不影响返回结果。
type Dispatcher struct {
	store    chatmsg.Store
	reg      *presence.Registry
	dir      usersvc.Directory
	pub      Publisher
	nodeID   string
	now      func() time.Time
	validate *validator.Validate
	log      *zap.Logger
}

func NewDispatcher(store chatmsg.Store, reg *presence.Registry, conf DispatcherConf) *Dispatcher {
	if conf.Publisher == nil {
		conf.Publisher = NopPublisher{}
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return &Dispatcher{
		store:    store,
		reg:      reg,
		dir:      conf.Directory,
		pub:      conf.Publisher,
		nodeID:   conf.NodeID,
		now:      conf.Now,
		validate: newValidator(),
		log:      logger.Named("dispatcher"),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	return v
}

func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*chatmodel.Message, error) {
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	req.Image = strings.TrimSpace(req.Image)
	if strings.TrimSpace(req.Text) == "" {
		return nil, errs.ErrValidation.WrapMsg("text is required")
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errs.ErrValidation.WrapMsg(describeValidation(err))
	}

	if d.dir != nil {
		ok, err := d.dir.Exists(ctx, req.ReceiverID)
		if err != nil {
			return nil, asStorage(err, "lookup receiver")
		}
		if !ok {
			return nil, errs.ErrNotFound.WrapMsg("receiver not found", "receiverId", req.ReceiverID)
		}
	}

	saved, err := d.store.Save(ctx, chatmodel.NewMessage(req.SenderID, req.ReceiverID, req.Text, req.Image, d.now()))
	if err != nil {
		return nil, asStorage(err, "save message")
	}

	d.deliver(saved)

	if err := d.pub.PublishJSON(ctx, natsx.BizMessagePersisted, saved, map[string]string{HeaderRelayNode: d.nodeID}); err != nil {
		d.log.Warn("publish message event failed", zap.String("id", saved.ID.Hex()), zap.Error(err))
	}
	return saved, nil
}

// deliver 推给收件人在本节点的全部连接，返回成功数。
func (d *Dispatcher) deliver(m *chatmodel.Message) int {
	handles := d.reg.HandlesFor(m.ReceiverID)
	if len(handles) == 0 {
		return 0
	}
	frame, err := EncodeFrame(EventNewMessage, m)
	if err != nil {
		d.log.Error("encode newMessage", zap.Error(err))
		return 0
	}
	n := 0
	for _, h := range handles {
		if err := h.Send(frame); err != nil {
			// 连接在查找与发送之间关闭：视为断开，消息仍可从历史取回
			d.log.Debug("live push failed", zap.String("conn", h.ID()), zap.String("user", m.ReceiverID), zap.Error(err))
			_ = h.Close()
			d.reg.Unregister(m.ReceiverID, h)
			continue
		}
		n++
	}
	return n
}

// HandleRemote 其他节点落库的消息，推给本节点上的收件人连接。
func (d *Dispatcher) HandleRemote(_ context.Context, msg natsx.NatsxMessage) error {
	if msg.Header[HeaderRelayNode] == d.nodeID {
		return nil
	}
	var m chatmodel.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return errs.WrapMsg(err, "decode remote message")
	}
	d.deliver(&m)
	return nil
}

// History peerID 必须是合法用户 ID；分页参数由 store 收敛。
func (d *Dispatcher) History(ctx context.Context, userID, peerID string, q chatmsg.HistoryQuery) ([]*chatmodel.Message, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized.WrapMsg("missing caller identity")
	}
	if !primitive.IsValidObjectID(peerID) {
		return nil, errs.ErrValidation.WrapMsg("invalid user id", "userId", peerID)
	}
	msgs, err := d.store.History(ctx, userID, peerID, q)
	if err != nil {
		return nil, asStorage(err, "load history")
	}
	return msgs, nil
}

func asStorage(err error, msg string) error {
	if errors.Is(err, errs.ErrStorage) {
		return err
	}
	return errs.ErrStorage.Cause(err, msg)
}

func describeValidation(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err.Error()
	}
	fe := ves[0]
	switch fe.Field() {
	case "ReceiverID":
		if fe.Tag() == "nefield" {
			return "cannot send a message to yourself"
		}
		return "receiverId must be a valid user id"
	case "Text":
		return "text is too long"
	case "Image":
		return "image reference is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
