package display

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/observability"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
	"github.com/exogonal/waycore/internal/transport"
)

// DisplayObjectID is the id every client's wl_display occupies.
const DisplayObjectID uint32 = 1

// Client is one connected peer: its transport, resource table and
// outgoing event queue. Requests dispatch sequentially on the client's
// serve goroutine; events may be posted from any goroutine.
type Client struct {
	id     string
	server *Server
	conn   *transport.Conn
	log    zerolog.Logger

	connectedAt time.Time

	mu         sync.RWMutex
	table      map[uint32]*Resource
	registries []uint32

	out     outbox
	flushMu sync.Mutex

	closeOnce sync.Once
}

func newClient(s *Server, conn *transport.Conn) (*Client, error) {
	c := &Client{
		id:          uuid.NewString(),
		server:      s,
		conn:        conn,
		connectedAt: time.Now(),
		table:       make(map[uint32]*Resource),
	}
	c.log = s.log.With().Str("client_id", c.id).Logger()
	disp, err := c.NewResource(s.displayIface, DisplayObjectID, 1)
	if err != nil {
		return nil, err
	}
	disp.SetHandler(s.displayHandler())
	return c, nil
}

// ID returns the server-assigned connection identity.
func (c *Client) ID() string { return c.id }

// Server returns the owning server.
func (c *Client) Server() *Server { return c.server }

// Contains reports id liveness; it satisfies the decoder's object table.
func (c *Client) Contains(id uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.table[id]
	return ok
}

// Get resolves a live resource by id.
func (c *Client) Get(id uint32) (*Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.table[id]
	return r, ok
}

// Resources returns the live resource count.
func (c *Client) Resources() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}

// NewResource registers a resource speaking iface at version under id.
func (c *Client) NewResource(iface *schema.Interface, id, version uint32) (*Resource, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: 0", ErrInvalidResourceID)
	}
	r := &Resource{id: id, version: version, iface: iface, client: c}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.table[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateResource, id)
	}
	c.table[id] = r
	return r, nil
}

func (c *Client) trackRegistry(id uint32) {
	c.mu.Lock()
	c.registries = append(c.registries, id)
	c.mu.Unlock()
}

func (c *Client) registrySnapshot() []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]uint32(nil), c.registries...)
}

// serve reads and dispatches frames until the connection or the session
// dies, then tears the client down.
func (c *Client) serve() {
	defer c.teardown()
	for {
		h, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logDisconnect(err)
			return
		}
		if err := c.dispatch(h, payload); err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				c.log.Warn().
					Uint32("object", pe.Object).
					Uint32("code", pe.Code).
					Str("message", pe.Message).
					Msg("protocol error")
			} else {
				c.log.Error().Err(err).Msg("dispatch failed")
			}
			return
		}
		if err := c.Flush(); err != nil {
			c.log.Warn().Err(err).Msg("flush failed")
			return
		}
	}
}

func (c *Client) logDisconnect(err error) {
	switch {
	case errors.Is(err, io.EOF):
		c.log.Info().Msg("client disconnected")
	case errors.Is(err, net.ErrClosed):
		c.log.Info().Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("read failed")
	}
}

// dispatch validates and runs one request frame end to end: resolve the
// target, gate the opcode against the bound version, decode arguments,
// pre-register any constructed resource, then invoke the implementation.
func (c *Client) dispatch(h protocol.Header, payload []byte) error {
	start := time.Now()

	r, ok := c.Get(h.ObjectID)
	if !ok {
		return c.abort("", &ProtocolError{
			Object:  h.ObjectID,
			Code:    schema.DisplayErrorInvalidObject,
			Message: fmt.Sprintf("unknown object %d", h.ObjectID),
		})
	}
	msg, ok := r.iface.Request(h.Opcode)
	if !ok {
		return c.abort(r.iface.Name, &ProtocolError{
			Object:  r.id,
			Code:    schema.DisplayErrorInvalidMethod,
			Message: fmt.Sprintf("%s has no request opcode %d", r.iface.Name, h.Opcode),
		})
	}
	if msg.Since > r.version {
		return c.abort(r.iface.Name, &ProtocolError{
			Object:  r.id,
			Code:    schema.DisplayErrorInvalidMethod,
			Message: fmt.Sprintf("%s.%s requires version %d, object bound at %d", r.iface.Name, msg.Name, msg.Since, r.version),
		})
	}

	args, nfds, err := protocol.DecodeArgs(msg.Args(), payload, c.conn.PendingFDs(), c)
	if err != nil {
		code := schema.DisplayErrorInvalidMethod
		if errors.Is(err, protocol.ErrInvalidObject) || errors.Is(err, protocol.ErrInvalidNewID) {
			code = schema.DisplayErrorInvalidObject
		}
		return c.abort(r.iface.Name, &ProtocolError{
			Object:  r.id,
			Code:    code,
			Message: fmt.Sprintf("%s.%s: %v", r.iface.Name, msg.Name, err),
		})
	}
	c.conn.DropFDs(nfds)

	// Typed constructors register the new resource before the handler
	// runs, so the implementation always finds it live. A failed request
	// takes the registration back with it.
	var created *Resource
	if msg.Creates != "" {
		iface, ok := c.server.registry.Lookup(msg.Creates)
		if !ok {
			panic(fmt.Sprintf("display: %s.%s creates unregistered interface %s", r.iface.Name, msg.Name, msg.Creates))
		}
		id := args[msg.NewIDIndex()].NewID
		res, err := c.NewResource(iface, id, min(r.version, iface.Version))
		if err != nil {
			return c.abort(r.iface.Name, &ProtocolError{
				Object:  r.id,
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("cannot register id %d: %v", id, err),
			})
		}
		created = res
	}

	handler := r.handlerRef()
	if handler == nil {
		if created != nil {
			c.destroyResource(created, false)
		}
		return c.abort(r.iface.Name, &ProtocolError{
			Object:  r.id,
			Code:    schema.DisplayErrorImplementation,
			Message: fmt.Sprintf("%s@%d has no implementation", r.iface.Name, r.id),
		})
	}
	if err := handler.HandleRequest(r, h.Opcode, args); err != nil {
		if created != nil {
			c.destroyResource(created, false)
		}
		var pe *ProtocolError
		if errors.As(err, &pe) {
			if pe.Object == 0 {
				pe.Object = r.id
			}
			return c.abort(r.iface.Name, pe)
		}
		c.log.Error().Err(err).
			Str("interface", r.iface.Name).
			Str("message", msg.Name).
			Msg("handler failed")
		return c.abort(r.iface.Name, &ProtocolError{
			Object:  r.id,
			Code:    schema.DisplayErrorImplementation,
			Message: "internal error",
		})
	}

	observability.RecordRequest(r.iface.Name, msg.Name, time.Since(start))
	return nil
}

// abort answers a fatal violation: queue wl_display.error, flush what
// the client is owed, and surface the error to end the serve loop.
func (c *Client) abort(iface string, pe *ProtocolError) error {
	observability.RecordProtocolError(iface, pe.Code)
	c.PostError(pe.Object, pe.Code, pe.Message)
	if err := c.Flush(); err != nil {
		c.log.Warn().Err(err).Msg("flush during abort")
	}
	return pe
}

// PostError queues a wl_display.error event naming object as culprit.
func (c *Client) PostError(object, code uint32, message string) {
	d, ok := c.Get(DisplayObjectID)
	if !ok || d.Destroyed() {
		return
	}
	d.Post(schema.DisplayErrorEvent,
		protocol.ObjectValue(object),
		protocol.UintValue(code),
		protocol.StringValue(message))
}

// Flush writes queued frames to the transport in post order. Concurrent
// flushes serialize; posting is never blocked by a slow write.
func (c *Client) Flush() error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	for {
		batch := c.out.drain()
		if len(batch) == 0 {
			return nil
		}
		for _, p := range batch {
			if err := c.conn.WriteMessage(p.frame, p.fds); err != nil {
				return err
			}
		}
	}
}

func (c *Client) destroyResource(r *Resource, postDelete bool) {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = nil
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(r)
	}
	c.mu.Lock()
	delete(c.table, r.id)
	c.mu.Unlock()
	if postDelete {
		if d, ok := c.Get(DisplayObjectID); ok && !d.Destroyed() {
			d.Post(schema.DisplayDeleteIDEvent, protocol.UintValue(r.id))
		}
	}
}

// Close tears the connection down from outside the serve goroutine; the
// blocked read fails and the serve goroutine finishes the teardown.
func (c *Client) Close() {
	_ = c.conn.Close()
}

// teardown destroys every resource in descending id order with no
// delete_id events, releases the connection and detaches from the
// server. Destroy listeners still run.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		resources := make([]*Resource, 0, len(c.table))
		for _, r := range c.table {
			resources = append(resources, r)
		}
		c.mu.Unlock()
		sort.Slice(resources, func(i, j int) bool { return resources[i].id > resources[j].id })
		for _, r := range resources {
			c.destroyResource(r, false)
		}
		_ = c.conn.Close()
		c.server.dropClient(c)
	})
}
