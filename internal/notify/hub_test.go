package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "channel closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func waitClosed(t *testing.T, ch <-chan Frame) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed")
		}
	}
}

func TestHub_RegisterAndPush(t *testing.T) {
	h := NewHub(time.Hour, time.Hour, time.Hour)
	ch, unregister := h.Register(context.Background(), "u1")
	defer unregister()

	f := recvFrame(t, ch)
	assert.Equal(t, "connected", f.Event)

	assert.True(t, h.Push("u1", "notification", map[string]string{"id": "n1"}))
	f = recvFrame(t, ch)
	assert.Equal(t, "notification", f.Event)

	assert.False(t, h.Push("nobody", "notification", nil))
}

func TestHub_SecondRegistrationReplacesFirst(t *testing.T) {
	h := NewHub(time.Hour, time.Hour, time.Hour)
	ch1, unreg1 := h.Register(context.Background(), "u1")
	defer unreg1()
	ch2, unreg2 := h.Register(context.Background(), "u1")
	defer unreg2()

	waitClosed(t, ch1)
	assert.Equal(t, 1, h.Len())

	assert.True(t, h.Push("u1", "notification", nil))
	_ = recvFrame(t, ch2) // connected
	f := recvFrame(t, ch2)
	assert.Equal(t, "notification", f.Event)

	// Unregistering the replaced connection must not tear down the
	// replacement.
	unreg1()
	assert.Equal(t, 1, h.Len())
}

func TestHub_Heartbeat(t *testing.T) {
	h := NewHub(10*time.Millisecond, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	ch, unregister := h.Register(ctx, "u1")
	defer unregister()

	_ = recvFrame(t, ch) // connected
	f := recvFrame(t, ch)
	assert.Equal(t, "ping", f.Event)

	// Cancelling the connection context stops the heartbeat and
	// removes the registration.
	cancel()
	waitClosed(t, ch)
	assert.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SweepRemovesIdleConnections(t *testing.T) {
	h := NewHub(time.Hour, 20*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	ch, unregister := h.Register(context.Background(), "u1")
	defer unregister()
	_ = recvFrame(t, ch)

	waitClosed(t, ch)
	assert.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Push("u1", "notification", nil))
}

func TestHub_FullBufferUnregisters(t *testing.T) {
	h := NewHub(time.Hour, time.Hour, time.Hour)
	_, unregister := h.Register(context.Background(), "u1")
	defer unregister()

	// Nobody drains; the buffer fills and the next push reports
	// non-delivery and unregisters.
	delivered := true
	for i := 0; i < 32 && delivered; i++ {
		delivered = h.Push("u1", "notification", i)
	}
	assert.False(t, delivered)
	assert.Equal(t, 0, h.Len())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub(time.Hour, time.Hour, time.Hour)
	ch, unregister := h.Register(context.Background(), "u1")
	unregister()
	unregister()
	waitClosed(t, ch)
	assert.Equal(t, 0, h.Len())
}
