package display

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/observability"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
	"github.com/exogonal/waycore/internal/transport"
)

// BindFunc attaches a server-side implementation to a freshly bound
// global. The resource is registered and live when the callback runs.
type BindFunc func(r *Resource)

// Global is one advertised capability: an interface offered to every
// client at a version no higher than the registry declares.
type Global struct {
	name    uint32
	iface   *schema.Interface
	version uint32
	bind    BindFunc
}

func (g *Global) Name() uint32                 { return g.name }
func (g *Global) Interface() *schema.Interface { return g.iface }
func (g *Global) Version() uint32              { return g.version }

// Config carries server construction parameters. A nil Registry means
// the builtin interface set. MaxClients 0 means unlimited.
type Config struct {
	Logger     zerolog.Logger
	Registry   *schema.Registry
	MaxClients int
}

// Server owns the interface registry, the advertised globals and every
// connected client. One Server may serve many clients; each client
// dispatches on its own goroutine.
type Server struct {
	log        zerolog.Logger
	registry   *schema.Registry
	maxClients int

	displayIface  *schema.Interface
	registryIface *schema.Interface

	serial  atomic.Uint32
	started time.Time

	mu       sync.RWMutex
	globals  map[uint32]*Global
	nextName uint32
	clients  map[string]*Client
}

// NewServer constructs a server over cfg.Registry and freezes it. The
// registry must resolve wl_display, wl_registry and every interface a
// constructor message names; a malformed registry is a programming
// error and panics.
func NewServer(cfg Config) *Server {
	reg := cfg.Registry
	if reg == nil {
		reg = schema.Builtin()
	}
	reg.Freeze()
	s := &Server{
		log:        cfg.Logger.With().Str("component", "display").Logger(),
		registry:   reg,
		maxClients: cfg.MaxClients,
		started:    time.Now(),
		globals:    make(map[uint32]*Global),
		clients:    make(map[string]*Client),
	}
	var ok bool
	if s.displayIface, ok = reg.Lookup(schema.DisplayName); !ok {
		panic("display: registry lacks " + schema.DisplayName)
	}
	if s.registryIface, ok = reg.Lookup(schema.RegistryName); !ok {
		panic("display: registry lacks " + schema.RegistryName)
	}
	validateConstructors(reg)
	return s
}

func validateConstructors(reg *schema.Registry) {
	for _, name := range reg.Names() {
		iface, _ := reg.Lookup(name)
		for _, msg := range iface.Requests {
			if msg.Creates == "" {
				continue
			}
			if _, ok := reg.Lookup(msg.Creates); !ok {
				panic(fmt.Sprintf("display: %s.%s creates unregistered interface %s", name, msg.Name, msg.Creates))
			}
		}
	}
}

// Registry returns the frozen interface registry the server speaks.
func (s *Server) Registry() *schema.Registry { return s.registry }

// NextSerial returns the next value of the server-wide event serial.
// Serials are shared across clients and never reused.
func (s *Server) NextSerial() uint32 { return s.serial.Add(1) }

// AddGlobal advertises iface to all clients, present and future, and
// returns the global's registry name. Version 0 means the interface's
// full version; anything above it is rejected.
func (s *Server) AddGlobal(ifaceName string, version uint32, bind BindFunc) (uint32, error) {
	iface, ok := s.registry.Lookup(ifaceName)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInterface, ifaceName)
	}
	if version == 0 {
		version = iface.Version
	}
	if version > iface.Version {
		return 0, fmt.Errorf("%w: %s version %d exceeds interface version %d", ErrInvalidVersion, ifaceName, version, iface.Version)
	}
	s.mu.Lock()
	s.nextName++
	g := &Global{name: s.nextName, iface: iface, version: version, bind: bind}
	s.globals[g.name] = g
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		s.announceGlobal(c, g)
		if err := c.Flush(); err != nil {
			c.log.Warn().Err(err).Msg("flush global announce")
		}
	}
	s.log.Info().
		Str("interface", ifaceName).
		Uint32("name", g.name).
		Uint32("version", version).
		Msg("global added")
	return g.name, nil
}

// RemoveGlobal withdraws a global from every client's registry. Already
// bound resources stay alive; only the advertisement goes away.
func (s *Server) RemoveGlobal(name uint32) bool {
	s.mu.Lock()
	g, ok := s.globals[name]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.globals, name)
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		for _, id := range c.registrySnapshot() {
			if r, ok := c.Get(id); ok && !r.Destroyed() {
				r.Post(schema.RegistryGlobalRemoveEvent, protocol.UintValue(name))
			}
		}
		if err := c.Flush(); err != nil {
			c.log.Warn().Err(err).Msg("flush global removal")
		}
	}
	s.log.Info().
		Uint32("name", name).
		Str("interface", g.iface.Name).
		Msg("global removed")
	return true
}

func (s *Server) announceGlobal(c *Client, g *Global) {
	for _, id := range c.registrySnapshot() {
		if r, ok := c.Get(id); ok && !r.Destroyed() {
			r.Post(schema.RegistryGlobalEvent,
				protocol.UintValue(g.name),
				protocol.StringValue(g.iface.Name),
				protocol.UintValue(g.version))
		}
	}
}

func (s *Server) globalsSnapshot() []*Global {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Global, 0, len(s.globals))
	for _, g := range s.globals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (s *Server) globalByName(name uint32) (*Global, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.globals[name]
	return g, ok
}

// displayHandler implements wl_display: sync answers with a callback
// done event and get_registry turns the new resource into a registry
// primed with the current global set.
func (s *Server) displayHandler() Handler {
	return HandlerFunc(func(r *Resource, opcode uint16, args []protocol.Value) error {
		switch opcode {
		case schema.DisplaySyncOp:
			cb, ok := r.Client().Get(args[0].NewID)
			if !ok {
				return fmt.Errorf("display: sync callback %d not registered", args[0].NewID)
			}
			cb.Post(schema.CallbackDoneEvent, protocol.UintValue(s.NextSerial()))
			cb.Destroy()
		case schema.DisplayGetRegistryOp:
			reg, ok := r.Client().Get(args[0].NewID)
			if !ok {
				return fmt.Errorf("display: registry %d not registered", args[0].NewID)
			}
			reg.SetHandler(s.registryHandler())
			r.Client().trackRegistry(reg.ID())
			for _, g := range s.globalsSnapshot() {
				reg.Post(schema.RegistryGlobalEvent,
					protocol.UintValue(g.name),
					protocol.StringValue(g.iface.Name),
					protocol.UintValue(g.version))
			}
		}
		return nil
	})
}

// registryHandler implements wl_registry.bind. The new_id slot is
// untyped on the wire, so the resource is registered here once the
// named global resolves.
func (s *Server) registryHandler() Handler {
	return HandlerFunc(func(r *Resource, opcode uint16, args []protocol.Value) error {
		if opcode != schema.RegistryBindOp {
			return nil
		}
		name := args[0].Uint
		ifaceName := args[1].String
		version := args[2].Uint
		id := args[3].NewID

		g, ok := s.globalByName(name)
		if !ok {
			return &ProtocolError{
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("bind: no global %d", name),
			}
		}
		if ifaceName != g.iface.Name {
			return &ProtocolError{
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("bind: global %d is %s, not %s", name, g.iface.Name, ifaceName),
			}
		}
		if version == 0 || version > g.version {
			return &ProtocolError{
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("bind: invalid version %d for %s, advertised %d", version, g.iface.Name, g.version),
			}
		}
		res, err := r.Client().NewResource(g.iface, id, version)
		if err != nil {
			return &ProtocolError{
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("bind: cannot register id %d: %v", id, err),
			}
		}
		if g.bind != nil {
			g.bind(res)
		}
		observability.RecordBind(g.iface.Name)
		return nil
	})
}

// Connect adopts conn as a new client and starts its serve goroutine.
// The caller keeps ownership of conn when Connect fails.
func (s *Server) Connect(conn *transport.Conn) (*Client, error) {
	c, err := newClient(s, conn)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.maxClients > 0 && len(s.clients) >= s.maxClients {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d connected", ErrClientLimit, s.maxClients)
	}
	s.clients[c.id] = c
	active := len(s.clients)
	s.mu.Unlock()
	observability.RecordClientConnect()
	c.log.Info().Int("active_clients", active).Msg("client connected")
	go c.serve()
	return c, nil
}

// Serve accepts clients from ln until ctx is cancelled or the listener
// fails. Cancellation closes every client connection.
func (s *Server) Serve(ctx context.Context, ln *transport.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeClients()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if _, err := s.Connect(conn); err != nil {
			s.log.Warn().Err(err).Msg("client setup failed")
			_ = conn.Close()
		}
	}
}

func (s *Server) dropClient(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	if ok {
		delete(s.clients, c.id)
	}
	active := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	observability.RecordClientDisconnect()
	c.log.Info().Int("active_clients", active).Msg("client removed")
}

func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}

// Interfaces implements observability.Source.
func (s *Server) Interfaces() []observability.InterfaceInfo {
	names := s.registry.Names()
	out := make([]observability.InterfaceInfo, 0, len(names))
	for _, name := range names {
		iface, ok := s.registry.Lookup(name)
		if !ok {
			continue
		}
		info := observability.InterfaceInfo{Name: iface.Name, Version: iface.Version}
		for _, m := range iface.Requests {
			info.Requests = append(info.Requests, m.Name)
		}
		for _, m := range iface.Events {
			info.Events = append(info.Events, m.Name)
		}
		out = append(out, info)
	}
	return out
}

// Globals implements observability.Source.
func (s *Server) Globals() []observability.GlobalInfo {
	globals := s.globalsSnapshot()
	out := make([]observability.GlobalInfo, 0, len(globals))
	for _, g := range globals {
		out = append(out, observability.GlobalInfo{Name: g.name, Interface: g.iface.Name, Version: g.version})
	}
	return out
}

// Clients implements observability.Source.
func (s *Server) Clients() []observability.ClientInfo {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	out := make([]observability.ClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, observability.ClientInfo{ID: c.id, Resources: c.Resources(), ConnectedAt: c.connectedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}
