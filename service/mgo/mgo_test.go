package mgo

import (
	"context"
	"errors"
	"testing"
	"time"

	"PPRelay/data/database/mgo/mongoutil"
	"PPRelay/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestBackoff_Bounded(t *testing.T) {
	req := require.New(t)
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt)
		req.Greater(d, time.Duration(0))
		req.LessOrEqual(d, maxBackoff)
	}
}

func TestManager_WaitReadyTimesOut(t *testing.T) {
	req := require.New(t)
	// Given a manager that was never started
	m := NewManager(&mongoutil.Config{Uri: "mongodb://127.0.0.1:1", Database: "chat"})

	// When waiting with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.WaitReady(ctx)

	// Then it reports a storage error and no DB is handed out
	req.True(errors.Is(err, errs.ErrStorage))
	_, ok := m.DB()
	req.False(ok)
	req.False(m.Healthy())
}

func TestManager_HealthHookFiresOnChange(t *testing.T) {
	req := require.New(t)
	m := NewManager(&mongoutil.Config{})
	var seen []bool
	m.OnHealth(func(ok bool) { seen = append(seen, ok) })

	m.setHealthy(true)
	m.setHealthy(true)
	m.setHealthy(false)

	req.Equal([]bool{true, false}, seen)
}
