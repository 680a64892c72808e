package push_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/push"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeChannel records everything sent to it and can be told to fail.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []push.Event
	closed bool
	fail   error
}

func (c *fakeChannel) Send(e push.Event, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, e)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) events() []push.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]push.Event(nil), c.sent...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRegistry() *push.Registry {
	return push.NewRegistry(time.Second, nil)
}

// =============================================================================
// CONNECT TESTS
// =============================================================================

func TestConnect_SendsAcknowledgement(t *testing.T) {
	reg := newTestRegistry()
	ch := &fakeChannel{}

	require.NoError(t, reg.Connect(1, ch))

	events := ch.events()
	require.Len(t, events, 1)
	assert.Equal(t, "connect", events[0].Name)
	assert.Equal(t, "You are connected!", events[0].Data)
	assert.NotEmpty(t, events[0].ID)
	assert.True(t, reg.Connected(1))
}

func TestConnect_ReplacesExistingConnection(t *testing.T) {
	// At most one live entry per user: reconnecting closes the old channel
	// and the registry size stays at one.

	reg := newTestRegistry()
	first := &fakeChannel{}
	second := &fakeChannel{}

	require.NoError(t, reg.Connect(1, first))
	require.NoError(t, reg.Connect(1, second))

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 1, reg.Len())

	// Deliveries now land on the replacement only.
	delivered, err := reg.Send(1, push.NewEvent("alarm", "hello"))
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Len(t, first.events(), 1) // only its own ack
	assert.Len(t, second.events(), 2)
}

func TestConnect_AckFailureEvicts(t *testing.T) {
	reg := newTestRegistry()
	ch := &fakeChannel{fail: errors.New("broken pipe")}

	err := reg.Connect(1, ch)
	require.Error(t, err)
	assert.ErrorIs(t, err, push.ErrDelivery)
	assert.False(t, reg.Connected(1))
	assert.True(t, ch.isClosed())
}

// =============================================================================
// DISCONNECT TESTS
// =============================================================================

func TestDisconnect(t *testing.T) {
	reg := newTestRegistry()
	ch := &fakeChannel{}
	require.NoError(t, reg.Connect(1, ch))

	assert.True(t, reg.Disconnect(1))
	assert.True(t, ch.isClosed())
	assert.False(t, reg.Connected(1))

	// Second disconnect finds nothing.
	assert.False(t, reg.Disconnect(1))
}

func TestDisconnect_NeverConnected(t *testing.T) {
	reg := newTestRegistry()
	assert.False(t, reg.Disconnect(42))
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_NoConnection_IsNotAnError(t *testing.T) {
	reg := newTestRegistry()

	delivered, err := reg.Send(42, push.NewEvent("alarm", "hello"))
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestSend_Delivered(t *testing.T) {
	reg := newTestRegistry()
	ch := &fakeChannel{}
	require.NoError(t, reg.Connect(1, ch))

	delivered, err := reg.Send(1, push.NewEvent("alarm", "hello"))
	require.NoError(t, err)
	assert.True(t, delivered)

	events := ch.events()
	require.Len(t, events, 2)
	assert.Equal(t, "alarm", events[1].Name)
	assert.Equal(t, "hello", events[1].Data)
}

func TestSend_FailureEvictsStaleConnection(t *testing.T) {
	reg := newTestRegistry()
	ch := &fakeChannel{}
	require.NoError(t, reg.Connect(1, ch))

	ch.mu.Lock()
	ch.fail = errors.New("client went away")
	ch.mu.Unlock()

	delivered, err := reg.Send(1, push.NewEvent("alarm", "hello"))
	assert.False(t, delivered)
	require.Error(t, err)
	assert.ErrorIs(t, err, push.ErrDelivery)

	var de *push.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, int64(1), de.UserID)

	assert.False(t, reg.Connected(1))
	assert.True(t, ch.isClosed())

	// Subsequent sends see no connection.
	delivered, err = reg.Send(1, push.NewEvent("alarm", "again"))
	require.NoError(t, err)
	assert.False(t, delivered)
}

// =============================================================================
// EVICT TESTS
// =============================================================================

func TestEvict_RemovesOwnChannelOnly(t *testing.T) {
	reg := newTestRegistry()
	stale := &fakeChannel{}
	require.NoError(t, reg.Connect(1, stale))

	fresh := &fakeChannel{}
	require.NoError(t, reg.Connect(1, fresh))

	// The stale handler tearing down must not remove the replacement.
	assert.False(t, reg.Evict(1, stale))
	assert.True(t, reg.Connected(1))

	assert.True(t, reg.Evict(1, fresh))
	assert.False(t, reg.Connected(1))
	assert.True(t, fresh.isClosed())
}

// =============================================================================
// NOTIFIER TESTS
// =============================================================================

func TestNotifier_SwallowsFailures(t *testing.T) {
	reg := newTestRegistry()
	n := push.Notifier{Registry: reg}

	// No connection: no panic, nothing delivered.
	n.Notify(1, "alarm", "hello")

	ch := &fakeChannel{}
	require.NoError(t, reg.Connect(1, ch))
	n.Notify(1, "alarm", "hello")
	assert.Len(t, ch.events(), 2)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		userID := int64(i % 4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch j % 4 {
				case 0:
					_ = reg.Connect(userID, &fakeChannel{})
				case 1:
					_, _ = reg.Send(userID, push.NewEvent("alarm", fmt.Sprintf("msg %d", j)))
				case 2:
					reg.Connected(userID)
				case 3:
					reg.Disconnect(userID)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.Len(), 4)
}
