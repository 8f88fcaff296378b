// Package client is the client side of the protocol: connect, discover
// globals, bind them and exchange messages. It drives the same codec
// and descriptor set as the server and exists for probes and tests; it
// is not a general-purpose client library.
//
// A Conn is meant for one goroutine: callers send requests and pump
// events explicitly with Next or Sync.
package client

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
	"github.com/exogonal/waycore/internal/transport"
)

// DisplayID is the client-side id of the wl_display object.
const DisplayID uint32 = 1

var (
	ErrUnknownInterface = errors.New("client: unknown interface")
	ErrNoRegistry       = errors.New("client: registry not created")
	ErrUnknownGlobal    = errors.New("client: unknown global")
)

// DisplayError is a fatal protocol error delivered by the server. The
// connection is dead once one arrives.
type DisplayError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *DisplayError) Error() string {
	return fmt.Sprintf("client: display error on object %d: code %d: %s", e.Object, e.Code, e.Message)
}

// Global is one capability advertised by the server's registry.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Conn is a client-side protocol connection with its object table and
// the globals discovered so far.
type Conn struct {
	t        *transport.Conn
	log      zerolog.Logger
	registry *schema.Registry

	mu      sync.Mutex
	nextID  uint32
	objects map[uint32]*Object

	display     *Object
	registryObj *Object
	globals     map[uint32]Global
}

// New wraps an established transport connection. A nil reg means the
// builtin descriptor set.
func New(t *transport.Conn, reg *schema.Registry, log zerolog.Logger) (*Conn, error) {
	if reg == nil {
		reg = schema.Builtin()
	}
	dispIface, ok := reg.Lookup(schema.DisplayName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInterface, schema.DisplayName)
	}
	c := &Conn{
		t:        t,
		log:      log.With().Str("component", "client").Logger(),
		registry: reg,
		nextID:   DisplayID + 1,
		objects:  make(map[uint32]*Object),
		globals:  make(map[uint32]Global),
	}
	c.display = &Object{id: DisplayID, iface: dispIface, version: 1, conn: c}
	c.objects[DisplayID] = c.display
	return c, nil
}

// Dial connects to a server socket.
func Dial(path string, reg *schema.Registry, log zerolog.Logger) (*Conn, error) {
	t, err := transport.Dial(path)
	if err != nil {
		return nil, err
	}
	c, err := New(t, reg, log)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return c, nil
}

// Display returns the wl_display object.
func (c *Conn) Display() *Object { return c.display }

// Close releases the connection.
func (c *Conn) Close() error { return c.t.Close() }

// Contains reports whether id is a live client-side object; it feeds
// object argument validation when decoding events.
func (c *Conn) Contains(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[id]
	return ok
}

func (c *Conn) get(id uint32) (*Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[id]
	return o, ok
}

func (c *Conn) allocate(iface *schema.Interface, version uint32) *Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	o := &Object{id: id, iface: iface, version: version, conn: c}
	c.objects[id] = o
	return o
}

func (c *Conn) release(id uint32) {
	c.mu.Lock()
	delete(c.objects, id)
	c.mu.Unlock()
}

func (c *Conn) send(objectID uint32, opcode uint16, sig []protocol.ArgSpec, values []protocol.Value) error {
	frame, fds, err := protocol.EncodeMessage(objectID, opcode, sig, values)
	if err != nil {
		return err
	}
	return c.t.WriteMessage(frame, fds)
}

// Next reads and dispatches one event. A wl_display.error comes back as
// a *DisplayError; any transport failure ends the pump.
func (c *Conn) Next() error {
	h, payload, err := c.t.ReadMessage()
	if err != nil {
		return err
	}
	if h.ObjectID == DisplayID {
		return c.handleDisplayEvent(h, payload)
	}
	obj, ok := c.get(h.ObjectID)
	if !ok {
		// Event raced the deletion of its target. No builtin event
		// carries descriptors, so skipping the payload is safe.
		c.log.Debug().Uint32("object", h.ObjectID).Uint16("opcode", h.Opcode).Msg("event for released id")
		return nil
	}
	msg, ok := obj.iface.Event(h.Opcode)
	if !ok {
		return fmt.Errorf("client: %s@%d has no event opcode %d", obj.iface.Name, obj.id, h.Opcode)
	}
	args, nfds, err := protocol.DecodeArgs(msg.Args(), payload, c.t.PendingFDs(), c)
	if err != nil {
		return fmt.Errorf("client: decode %s.%s: %w", obj.iface.Name, msg.Name, err)
	}
	c.t.DropFDs(nfds)
	if obj == c.registryObj {
		c.recordGlobal(h.Opcode, args)
	}
	if handler := obj.handlerRef(); handler != nil {
		handler(obj, h.Opcode, args)
	}
	return nil
}

// anyObject admits every object id. Error events may blame ids this
// side no longer tracks.
type anyObject struct{}

func (anyObject) Contains(uint32) bool { return true }

func (c *Conn) handleDisplayEvent(h protocol.Header, payload []byte) error {
	switch h.Opcode {
	case schema.DisplayErrorEvent:
		msg, _ := c.display.iface.Event(h.Opcode)
		args, _, err := protocol.DecodeArgs(msg.Args(), payload, nil, anyObject{})
		if err != nil {
			return fmt.Errorf("client: decode display error: %w", err)
		}
		return &DisplayError{Object: args[0].Object, Code: args[1].Uint, Message: args[2].String}
	case schema.DisplayDeleteIDEvent:
		msg, _ := c.display.iface.Event(h.Opcode)
		args, _, err := protocol.DecodeArgs(msg.Args(), payload, nil, anyObject{})
		if err != nil {
			return fmt.Errorf("client: decode delete_id: %w", err)
		}
		c.release(args[0].Uint)
		return nil
	}
	return fmt.Errorf("client: wl_display sent unknown opcode %d", h.Opcode)
}

func (c *Conn) recordGlobal(opcode uint16, args []protocol.Value) {
	switch opcode {
	case schema.RegistryGlobalEvent:
		c.mu.Lock()
		c.globals[args[0].Uint] = Global{Name: args[0].Uint, Interface: args[1].String, Version: args[2].Uint}
		c.mu.Unlock()
	case schema.RegistryGlobalRemoveEvent:
		c.mu.Lock()
		delete(c.globals, args[0].Uint)
		c.mu.Unlock()
	}
}

// Sync runs a full round trip: every request sent before it has been
// dispatched by the server once Sync returns. Events that arrive before
// the callback fires are dispatched normally.
func (c *Conn) Sync() error {
	cb, err := c.display.RequestNew(schema.DisplaySyncOp)
	if err != nil {
		return err
	}
	done := false
	cb.SetHandler(func(_ *Object, opcode uint16, _ []protocol.Value) {
		if opcode == schema.CallbackDoneEvent {
			done = true
		}
	})
	// The server destroys the callback right after done, so pump until
	// its delete_id lands and the id is free again.
	for !done || c.Contains(cb.id) {
		if err := c.Next(); err != nil {
			return err
		}
	}
	return nil
}

// GetRegistry creates the wl_registry object once and reuses it.
func (c *Conn) GetRegistry() (*Object, error) {
	if c.registryObj != nil {
		return c.registryObj, nil
	}
	reg, err := c.display.RequestNew(schema.DisplayGetRegistryOp)
	if err != nil {
		return nil, err
	}
	c.registryObj = reg
	return reg, nil
}

// Discover creates the registry if needed and round-trips so the global
// dump is complete, then returns the known globals.
func (c *Conn) Discover() ([]Global, error) {
	if _, err := c.GetRegistry(); err != nil {
		return nil, err
	}
	if err := c.Sync(); err != nil {
		return nil, err
	}
	return c.Globals(), nil
}

// Globals returns the advertised globals, ordered by registry name.
func (c *Conn) Globals() []Global {
	c.mu.Lock()
	out := make([]Global, 0, len(c.globals))
	for _, g := range c.globals {
		out = append(out, g)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GlobalByInterface finds a discovered global by interface name.
func (c *Conn) GlobalByInterface(iface string) (Global, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.globals {
		if g.Interface == iface {
			return g, true
		}
	}
	return Global{}, false
}

// Bind binds a discovered global and returns the new object. Version 0
// means the highest version both sides speak.
func (c *Conn) Bind(g Global, version uint32) (*Object, error) {
	if c.registryObj == nil {
		return nil, ErrNoRegistry
	}
	iface, ok := c.registry.Lookup(g.Interface)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInterface, g.Interface)
	}
	if version == 0 {
		version = min(g.Version, iface.Version)
	}
	obj := c.allocate(iface, version)
	msg, _ := c.registryObj.iface.Request(schema.RegistryBindOp)
	err := c.send(c.registryObj.id, schema.RegistryBindOp, msg.Args(), []protocol.Value{
		protocol.UintValue(g.Name),
		protocol.StringValue(g.Interface),
		protocol.UintValue(version),
		protocol.NewIDValue(obj.id),
	})
	if err != nil {
		c.release(obj.id)
		return nil, err
	}
	return obj, nil
}

// BindInterface discovers nothing; it binds a global already known for
// the named interface.
func (c *Conn) BindInterface(iface string, version uint32) (*Object, error) {
	g, ok := c.GlobalByInterface(iface)
	if !ok {
		return nil, fmt.Errorf("%w: no global for %s", ErrUnknownGlobal, iface)
	}
	return c.Bind(g, version)
}
