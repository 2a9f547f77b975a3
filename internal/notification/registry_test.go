package notification

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records delivered events and can be told to fail sends or pings.
type fakeChannel struct {
	mu         sync.Mutex
	events     []*Event
	sendErr    error
	pingErr    error
	pings      int
	closed     bool
	lastActive time.Time
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{lastActive: time.Now()}
}

func (c *fakeChannel) Send(event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, event)
	c.lastActive = time.Now()
	return nil
}

func (c *fakeChannel) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	if c.pingErr != nil {
		return c.pingErr
	}
	c.lastActive = time.Now()
	return nil
}

func (c *fakeChannel) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndUnregister(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	first := newFakeChannel()
	second := newFakeChannel()

	registry.Register(7, first)
	registry.Register(7, second)
	assert.Equal(t, 2, registry.UserChannelCount(7))

	registry.Unregister(7, first)
	assert.Equal(t, 1, registry.UserChannelCount(7))

	// Removing the last channel removes the user entirely.
	registry.Unregister(7, second)
	assert.False(t, registry.HasUser(7))
}

func TestSendToUserDeliversToAllChannels(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	first := newFakeChannel()
	second := newFakeChannel()
	registry.Register(3, first)
	registry.Register(3, second)

	registry.SendToUser(3, NewNotificationEvent("hello"))

	assert.Equal(t, 1, first.delivered())
	assert.Equal(t, 1, second.delivered())
}

func TestSendToUserWithoutChannelsIsNoOp(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	registry.SendToUser(42, NewNotificationEvent("nobody home"))
	assert.False(t, registry.HasUser(42))
}

func TestBrokenChannelRemovedWithoutAbortingSiblings(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	broken := newFakeChannel()
	broken.sendErr = errors.New("connection reset")
	healthy := newFakeChannel()
	registry.Register(5, broken)
	registry.Register(5, healthy)

	registry.SendToUser(5, NewNotificationEvent("update"))

	assert.Equal(t, 1, healthy.delivered(), "healthy sibling still receives the event")
	assert.Equal(t, 1, registry.UserChannelCount(5))
	assert.True(t, broken.closed)
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	channels := make([]*fakeChannel, 0, 5)
	for userID := int64(1); userID <= 5; userID++ {
		ch := newFakeChannel()
		channels = append(channels, ch)
		registry.Register(userID, ch)
	}

	registry.Broadcast(NewNotificationEvent("maintenance window"))

	for _, ch := range channels {
		assert.Equal(t, 1, ch.delivered())
	}
}

func TestProbeIdleChannelsPingsAndDisconnects(t *testing.T) {
	t.Parallel()

	registry := testRegistry()

	fresh := newFakeChannel()
	idle := newFakeChannel()
	idle.lastActive = time.Now().Add(-45 * time.Second)
	dead := newFakeChannel()
	dead.lastActive = time.Now().Add(-2 * time.Minute)
	dead.pingErr = errors.New("write: broken pipe")

	registry.Register(1, fresh)
	registry.Register(1, idle)
	registry.Register(1, dead)

	registry.probeIdleChannels(30 * time.Second)

	assert.Equal(t, 0, fresh.pings, "active channel is not probed")
	assert.Equal(t, 1, idle.pings, "idle channel gets a keepalive ping")
	assert.True(t, dead.closed, "unresponsive channel is disconnected")
	assert.Equal(t, 2, registry.UserChannelCount(1))
}

func TestProbeDisconnectsLongSilentChannel(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	silent := newFakeChannel()
	silent.lastActive = time.Now().Add(-3 * time.Minute)

	registry.Register(9, silent)
	registry.probeIdleChannels(30 * time.Second)

	// Even though the ping succeeded, silence past twice the window drops it.
	assert.True(t, silent.closed)
	assert.False(t, registry.HasUser(9))
}

func TestConcurrentSendAndRegister(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	var wg sync.WaitGroup

	for userID := int64(0); userID < 32; userID++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ch := newFakeChannel()
			registry.Register(id, ch)
			registry.SendToUser(id, NewNotificationEvent("hi"))
			registry.Unregister(id, ch)
		}(userID)
	}
	wg.Wait()

	for userID := int64(0); userID < 32; userID++ {
		require.False(t, registry.HasUser(userID))
	}
}
