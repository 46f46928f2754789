package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) string {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestNatsManager_PublishSubscribe(t *testing.T) {
	req := require.New(t)
	url := runServer(t)
	ctx := context.Background()

	// Given a manager with the default routes and a subscriber
	m, err := NewNatsManager(NatsxConfig{Servers: []string{url}, Name: "test"}, DefaultRoutes(), NatsxRecoverMiddleware(), NatsxLogMiddleware())
	req.NoError(err)
	defer m.Close()

	got := make(chan NatsxMessage, 1)
	req.NoError(m.Subscribe(ctx, BizMessagePersisted, func(_ context.Context, msg NatsxMessage) error {
		got <- msg
		return nil
	}))
	req.NoError(m.Flush())

	// When a JSON payload is published
	req.NoError(m.PublishJSON(ctx, BizMessagePersisted, map[string]string{"text": "hi"}, map[string]string{"Relay-Node": "n1"}))

	// Then it arrives with a message id and the caller's headers
	select {
	case msg := <-got:
		req.Equal(SubjectMessagePersisted, msg.Subject)
		req.NotEmpty(msg.Header[HeaderMsgID])
		req.Equal("n1", msg.Header["Relay-Node"])
		var body map[string]string
		req.NoError(json.Unmarshal(msg.Data, &body))
		req.Equal("hi", body["text"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNatsManager_UnknownRoute(t *testing.T) {
	req := require.New(t)
	m, err := NewNatsManager(NatsxConfig{Servers: []string{runServer(t)}}, nil)
	req.NoError(err)
	defer m.Close()

	err = m.PublishJSON(context.Background(), "nope", 1, nil)
	req.True(errors.Is(err, ErrRouteNotFound))
	err = m.Subscribe(context.Background(), "nope", func(context.Context, NatsxMessage) error { return nil })
	req.True(errors.Is(err, ErrRouteNotFound))
}

func TestNewNatsxClient_NoServers(t *testing.T) {
	_, err := NewNatsxClient(NatsxConfig{})
	require.Error(t, err)
}

func TestIdemMiddleware_DropsDuplicates(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		calls.Add(1)
		return nil
	}, NatsxIdemMiddleware(NewMemIdem(ctx, time.Minute), 0))

	msg := NatsxMessage{Subject: "s", Header: map[string]string{HeaderMsgID: "id-1"}}
	req.NoError(h(ctx, msg))
	req.NoError(h(ctx, msg))
	req.NoError(h(ctx, NatsxMessage{Subject: "s", Data: []byte("x")}))
	req.NoError(h(ctx, NatsxMessage{Subject: "s", Data: []byte("x")}))

	req.Equal(int32(2), calls.Load())
}

func TestRecoverMiddleware(t *testing.T) {
	h := NatsxChain(func(context.Context, NatsxMessage) error { panic("boom") }, NatsxRecoverMiddleware())
	require.ErrorIs(t, h(context.Background(), NatsxMessage{Subject: "s"}), errPanic)
}

func TestMemIdem_Expires(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	mi := &memIdem{m: map[string]int64{}, ttl: time.Second, now: func() time.Time { return now }}

	seen, _ := mi.SeenOnce("k", 0)
	req.False(seen)
	seen, _ = mi.SeenOnce("k", 0)
	req.True(seen)

	now = now.Add(2 * time.Second)
	mi.sweep()
	req.Empty(mi.m)
	seen, _ = mi.SeenOnce("k", 0)
	req.False(seen)
}
