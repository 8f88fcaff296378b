package display

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/exogonal/waycore/internal/observability"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// Handler is the server-side implementation bound to a resource. Args
// arrive already validated against the request signature.
type Handler interface {
	HandleRequest(r *Resource, opcode uint16, args []protocol.Value) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r *Resource, opcode uint16, args []protocol.Value) error

func (f HandlerFunc) HandleRequest(r *Resource, opcode uint16, args []protocol.Value) error {
	return f(r, opcode, args)
}

// Resource is one protocol object owned by a client: an id bound to an
// interface at a negotiated version, with a server-side implementation.
type Resource struct {
	id      uint32
	version uint32
	iface   *schema.Interface
	client  *Client

	destroyed atomic.Bool

	mu        sync.Mutex
	handler   Handler
	listeners []func(*Resource)
}

func (r *Resource) ID() uint32                   { return r.id }
func (r *Resource) Version() uint32              { return r.version }
func (r *Resource) Interface() *schema.Interface { return r.iface }
func (r *Resource) Client() *Client              { return r.client }

// SetHandler binds the implementation invoked for requests on r.
func (r *Resource) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

func (r *Resource) handlerRef() Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

// OnDestroy registers fn to run exactly once when r is destroyed, in
// registration order. Listeners run for client destructor requests,
// server-side Destroy and connection teardown alike.
func (r *Resource) OnDestroy(fn func(*Resource)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Destroyed reports whether r has been destroyed.
func (r *Resource) Destroyed() bool { return r.destroyed.Load() }

// Post queues one event on r for delivery at the next flush. Misuse is a
// programming error and panics: posting on a destroyed resource, an
// unknown opcode, an event past the bound version, or arguments that do
// not match the signature.
func (r *Resource) Post(opcode uint16, args ...protocol.Value) {
	if !r.TryPost(opcode, args...) {
		panic(fmt.Sprintf("display: post on destroyed %s@%d", r.iface.Name, r.id))
	}
}

// TryPost is Post for emitters running off the dispatch goroutine, where
// the client may destroy r concurrently. It reports false instead of
// panicking when r is already destroyed; opcode, version and argument
// violations still panic.
func (r *Resource) TryPost(opcode uint16, args ...protocol.Value) bool {
	if r.destroyed.Load() {
		return false
	}
	msg, ok := r.iface.Event(opcode)
	if !ok {
		panic(fmt.Sprintf("display: %s has no event opcode %d", r.iface.Name, opcode))
	}
	if msg.Since > r.version {
		panic(fmt.Sprintf("display: event %s.%s needs version %d, %s@%d is bound at %d",
			r.iface.Name, msg.Name, msg.Since, r.iface.Name, r.id, r.version))
	}
	frame, fds, err := protocol.EncodeMessage(r.id, opcode, msg.Args(), args)
	if err != nil {
		panic(fmt.Sprintf("display: encode %s.%s: %v", r.iface.Name, msg.Name, err))
	}
	r.client.out.push(frame, fds)
	observability.RecordEvent(r.iface.Name, msg.Name)
	return true
}

// Destroy removes r from its client's table, runs destroy listeners and
// tells the client the id is free for reuse. Idempotent.
func (r *Resource) Destroy() {
	r.client.destroyResource(r, true)
}
