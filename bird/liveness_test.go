package bird_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/philippseith/gobird/bird"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessDownAndUp(t *testing.T) {
	b := newBackend(t)
	conn := dial(t, b, bird.WithAlarmInterval(10*time.Millisecond))

	var connects, downs atomic.Int32
	require.NoError(t, conn.On(bird.EventConnect, func() { connects.Add(1) }))
	require.NoError(t, conn.On(bird.EventError, func(err error) {
		if errors.Is(err, bird.ErrorRemoteDown) {
			downs.Add(1)
		}
	}))
	b.next(bird.ActionEnter)

	b.heartbeat(bird.HeartbeatOnline)
	b.heartbeat(bird.HeartbeatOnline)
	assert.Eventually(t, func() bool { return conn.State() == bird.StateUp }, time.Second, 5*time.Millisecond)

	b.heartbeat(bird.HeartbeatOffline)
	b.heartbeat(bird.HeartbeatClosing)
	assert.Eventually(t, func() bool { return conn.State() == bird.StateBroken }, time.Second, 5*time.Millisecond)
	// let the alarm fire a few times
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), downs.Load())
	assert.Equal(t, int32(1), connects.Load())
	assert.True(t, conn.Connected())

	b.heartbeat(bird.HeartbeatOnline)
	b.heartbeat(bird.HeartbeatOnline)
	assert.Eventually(t, func() bool { return conn.State() == bird.StateUp }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), connects.Load())
	assert.Equal(t, int32(1), downs.Load())
}

func TestLivenessTimeout(t *testing.T) {
	b := newBackend(t)
	conn := dial(t, b, bird.WithLivenessTimeout(50*time.Millisecond))

	errs := make(chan error, 4)
	closed := make(chan error, 1)
	require.NoError(t, conn.On(bird.EventError, func(err error) { errs <- err }))
	require.NoError(t, conn.On(bird.EventClose, func(err error) { closed <- err }))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, bird.ErrorTimeout)
	case <-time.After(time.Second):
		t.Fatal("no timeout")
	}
	select {
	case err := <-closed:
		assert.ErrorIs(t, err, bird.ErrorTimeout)
		assert.ErrorIs(t, err, bird.ErrorClosed)
	case <-time.After(time.Second):
		t.Fatal("not closed")
	}
	assert.Equal(t, bird.StateClosed, conn.State())

	_, err := conn.SyncContactAndRoom(context.Background())
	assert.ErrorIs(t, err, bird.ErrorNotConnected)
}

func TestHeartbeatStopsTimeout(t *testing.T) {
	b := newBackend(t)
	conn := dial(t, b, bird.WithLivenessTimeout(100*time.Millisecond))
	b.next(bird.ActionEnter)

	b.heartbeat(bird.HeartbeatOnline)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, bird.StateUp, conn.State())
	assert.True(t, conn.Connected())
}
