/*
stream.go - server-sent-events transport for the push registry

PURPOSE:
  Binds the transport-agnostic push registry to HTTP. GET /auth/connect
  upgrades the response into an SSE stream and registers it under the
  caller's id; POST /auth/disconnect tears it down; POST /auth/msg pushes
  a fire-and-forget event to the caller's own stream.

WIRE FORMAT:
  Standard SSE frames:
    id: <uuid>
    event: <name>
    data: <payload>
    <blank line>

TEARDOWN:
  The handler blocks until either the client goes away (request context)
  or the registry replaces/evicts the channel (done chan). On context
  teardown it evicts only its own channel, so a replacement connection
  registered meanwhile is never torn down by the stale handler.
*/
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/warp/leave-engine/push"
)

// sseChannel adapts one http.ResponseWriter to push.Channel.
type sseChannel struct {
	mu   sync.Mutex
	w    http.ResponseWriter
	rc   *http.ResponseController
	done chan struct{}
	once sync.Once
}

func newSSEChannel(w http.ResponseWriter) *sseChannel {
	return &sseChannel{
		w:    w,
		rc:   http.NewResponseController(w),
		done: make(chan struct{}),
	}
}

// Send writes one SSE frame and flushes it. The registry's deadline is
// applied as a write deadline so a stalled client cannot block the caller
// past it.
func (c *sseChannel) Send(e push.Event, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("stream closed")
	default:
	}

	if err := c.rc.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Name, e.Data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Close is idempotent and releases the handler blocked in Connect.
func (c *sseChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Connect opens the caller's SSE stream. At most one stream per user is
// live; a newer connect supersedes this one and unblocks it.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := newSSEChannel(w)
	if err := h.Registry.Connect(id.UserID, ch); err != nil {
		h.log.WithError(err).WithField("user", id.UserID).Warn("push connect ack failed")
		writeError(w, http.StatusInternalServerError, "failed to establish stream", "", err.Error())
		return
	}

	h.log.WithField("user", id.UserID).Info("push stream opened")

	select {
	case <-r.Context().Done():
		// Client went away. Only remove our own channel; a replacement
		// connection may already own the slot.
		if h.Registry.Evict(id.UserID, ch) {
			h.log.WithField("user", id.UserID).Info("push stream closed by client")
		}
	case <-ch.done:
		h.log.WithField("user", id.UserID).Info("push stream superseded")
	}
}

// Disconnect closes the caller's live stream, if any.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	if !h.Registry.Disconnect(id.UserID) {
		writeError(w, http.StatusBadRequest, "not connected", "", "")
		return
	}
	writeJSON(w, http.StatusOK, DisconnectDTO{Disconnected: true})
}

// SendMessage pushes a fire-and-forget event to the caller's own stream.
// Absence of a stream is not an error; the response just reports it.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req SendMessageRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	name := req.Event
	if name == "" {
		name = "message"
	}

	delivered, err := h.Registry.Send(id.UserID, push.NewEvent(name, req.Message))
	dto := SendMessageDTO{Delivered: delivered}
	switch {
	case err != nil:
		dto.Reason = err.Error()
		h.log.WithError(err).WithField("user", id.UserID).Warn("push send failed")
	case !delivered:
		dto.Reason = "no live connection"
	}
	writeJSON(w, http.StatusOK, dto)
}
