/*
Package push tracks one live server-push connection per user.

PURPOSE:
  The registry is the only shared mutable structure in the system: a map
  from userId to the user's single open push channel, mutated concurrently
  by connect, disconnect, and send from different request goroutines.

CONTRACT:
  - At most one entry per user. Connect is last-connect-wins: a prior
    channel is closed and replaced, never an error.
  - Connect pushes a synchronous "connect" acknowledgement; if the ack
    cannot be delivered the fresh entry is evicted and Connect fails.
  - Send to an absent user is a reported no-op, not an error. A transport
    failure evicts the stale entry (self-healing) and is reported; there
    is no retry.
  - Every check-then-act runs under the registry mutex, including the send
    attempt itself, so Send can never observe a half-torn-down entry. The
    mutex is only ever held for one bounded send; channels must honor the
    deadline they are given.

SEE ALSO:
  - api/stream.go: the SSE channel implementation
  - leave/engine.go: fire-and-forget business notifications
*/
package push

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 5 * time.Second

// =============================================================================
// EVENTS AND CHANNELS
// =============================================================================

// Event is one server-push message.
type Event struct {
	ID   string `json:"id"`
	Name string `json:"event"`
	Data string `json:"data"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(name, data string) Event {
	return Event{ID: uuid.NewString(), Name: name, Data: data}
}

// Channel is one open transport to one client. Send must respect the
// deadline; Close must be idempotent and unblock any handler waiting on
// the connection.
type Channel interface {
	Send(e Event, deadline time.Time) error
	Close() error
}

// ErrDelivery is the sentinel for push delivery failures.
var ErrDelivery = errors.New("push delivery failed")

// DeliveryError reports a failed send attempt.
type DeliveryError struct {
	UserID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push to user %d failed: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }

// =============================================================================
// REGISTRY
// =============================================================================

type entry struct {
	id string // connection id, for logs
	ch Channel
}

// Registry holds at most one live channel per user.
type Registry struct {
	mu      sync.Mutex
	conns   map[int64]*entry
	timeout time.Duration
	log     *logrus.Logger
}

func NewRegistry(sendTimeout time.Duration, log *logrus.Logger) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		conns:   make(map[int64]*entry),
		timeout: sendTimeout,
		log:     log,
	}
}

// Connect registers ch as the user's single live channel, replacing and
// closing any prior one, then pushes the connected acknowledgement. An ack
// failure evicts the fresh entry and fails the connect.
func (r *Registry) Connect(userID int64, ch Channel) error {
	e := &entry{id: uuid.NewString(), ch: ch}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[userID]; ok {
		old.ch.Close()
		r.log.WithFields(logrus.Fields{"user": userID, "conn": old.id}).
			Debug("replaced live connection")
	}
	r.conns[userID] = e

	ack := NewEvent("connect", "You are connected!")
	if err := ch.Send(ack, time.Now().Add(r.timeout)); err != nil {
		if cur, ok := r.conns[userID]; ok && cur == e {
			delete(r.conns, userID)
		}
		ch.Close()
		return &DeliveryError{UserID: userID, Err: err}
	}

	r.log.WithFields(logrus.Fields{"user": userID, "conn": e.id}).Debug("connected")
	return nil
}

// Disconnect closes and removes the user's channel. Returns false when the
// user has no live connection.
func (r *Registry) Disconnect(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(r.conns, userID)
	e.ch.Close()
	r.log.WithFields(logrus.Fields{"user": userID, "conn": e.id}).Debug("disconnected")
	return true
}

// Send attempts one bounded delivery to the user's live channel.
// (false, nil): no connection, delivery not attempted.
// (false, *DeliveryError): transport failed; the stale entry was evicted.
// (true, nil): delivered.
func (r *Registry) Send(userID int64, e Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.conns[userID]
	if !ok {
		return false, nil
	}
	if err := ent.ch.Send(e, time.Now().Add(r.timeout)); err != nil {
		delete(r.conns, userID)
		ent.ch.Close()
		return false, &DeliveryError{UserID: userID, Err: err}
	}
	return true, nil
}

// Evict removes the user's entry only if it still wraps ch. Used by a
// transport handler tearing itself down: if the user already reconnected,
// the replacement entry is left alone.
func (r *Registry) Evict(userID int64, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[userID]
	if !ok || e.ch != ch {
		return false
	}
	delete(r.conns, userID)
	e.ch.Close()
	return true
}

// Connected reports whether the user currently has a live channel.
func (r *Registry) Connected(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// =============================================================================
// NOTIFIER - Fire-and-forget adapter for the engine
// =============================================================================

// Notifier adapts the registry to a fire-and-forget contract: failures are
// logged, never returned, so a dead connection cannot fail a business
// operation.
type Notifier struct {
	Registry *Registry
	Log      *logrus.Logger
}

func (n Notifier) Notify(userID int64, event, message string) {
	delivered, err := n.Registry.Send(userID, NewEvent(event, message))
	if err != nil {
		n.logger().WithError(err).WithField("user", userID).Warn("push delivery failed")
		return
	}
	if !delivered {
		n.logger().WithField("user", userID).Debug("no live connection, push skipped")
	}
}

func (n Notifier) logger() *logrus.Logger {
	if n.Log != nil {
		return n.Log
	}
	return logrus.StandardLogger()
}
