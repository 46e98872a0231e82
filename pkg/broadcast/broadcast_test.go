package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithTimeout(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return 0
	}
}

func TestBroadcastFanOut(t *testing.T) {
	source := make(chan int)
	b := NewServer("test", source)
	defer b.Close()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	go func() { source <- 42 }()
	assert.Equal(t, 42, recvWithTimeout(t, sub1))
	assert.Equal(t, 42, recvWithTimeout(t, sub2))
}

func TestBroadcastCancelClosesChannel(t *testing.T) {
	source := make(chan int)
	b := NewServer("test", source)
	defer b.Close()

	sub := b.Subscribe()
	b.CancelSubscription(sub)

	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBroadcastCloseClosesSubscribers(t *testing.T) {
	source := make(chan int)
	b := NewServer("test", source)
	sub := b.Subscribe()

	b.Close()

	select {
	case _, open := <-sub:
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after server close")
	}
}

// a subscriber that never reads must not prevent delivery to the others
func TestBroadcastSkipsStalledSubscriber(t *testing.T) {
	source := make(chan int)
	b := NewServer("test", source)
	defer b.Close()

	_ = b.Subscribe() // never read from
	active := b.Subscribe()

	go func() {
		source <- 1
		source <- 2
	}()
	assert.Equal(t, 1, recvWithTimeout(t, active))
	assert.Equal(t, 2, recvWithTimeout(t, active))
}
