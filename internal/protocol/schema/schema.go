package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/exogonal/waycore/internal/protocol"
)

// Message declares one request or event: wire name, compact argument
// signature, and the interface version that introduced it. A zero Since
// reads as version 1.
type Message struct {
	Name  string
	Sig   string
	Since uint32

	// Creates names the interface constructed by this request's new_id
	// argument. Empty for events, for requests without a new_id, and for
	// untyped new_ids resolved at dispatch time (wl_registry.bind).
	Creates string

	args     []protocol.ArgSpec
	newIDIdx int
}

// Args returns the parsed signature. Populated when the owning interface
// is registered.
func (m *Message) Args() []protocol.ArgSpec { return m.args }

// NewIDIndex returns the argument index of the new_id, or -1 when the
// signature has none.
func (m *Message) NewIDIndex() int { return m.newIDIdx }

// Interface describes one protocol interface: advertised name and version
// plus its request and event tables, indexed by opcode.
type Interface struct {
	Name     string
	Version  uint32
	Requests []Message
	Events   []Message
}

// Request resolves a request opcode.
func (i *Interface) Request(op uint16) (*Message, bool) {
	if int(op) >= len(i.Requests) {
		return nil, false
	}
	return &i.Requests[op], true
}

// Event resolves an event opcode.
func (i *Interface) Event(op uint16) (*Message, bool) {
	if int(op) >= len(i.Events) {
		return nil, false
	}
	return &i.Events[op], true
}

// Registry holds the interfaces a server speaks, keyed by wire name.
// Registration is a startup concern; freezing the registry afterwards
// keeps dispatch-time lookups free of registration races.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Interface
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Interface)}
}

// Register adds iface. It panics on a duplicate name, a malformed
// declaration, or a frozen registry: those are programming errors, not
// runtime conditions.
func (r *Registry) Register(iface *Interface) {
	if iface.Name == "" {
		panic("schema: interface with empty name")
	}
	if iface.Version == 0 {
		panic(fmt.Sprintf("schema: interface %s with version 0", iface.Name))
	}
	compile(iface.Name, iface.Version, iface.Requests)
	compile(iface.Name, iface.Version, iface.Events)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("schema: register %s on frozen registry", iface.Name))
	}
	if _, ok := r.byName[iface.Name]; ok {
		panic(fmt.Sprintf("schema: duplicate interface %s", iface.Name))
	}
	r.byName[iface.Name] = iface
}

func compile(iface string, version uint32, msgs []Message) {
	for idx := range msgs {
		m := &msgs[idx]
		args, err := protocol.ParseSignature(m.Sig)
		if err != nil {
			panic(fmt.Sprintf("schema: %s.%s: %v", iface, m.Name, err))
		}
		m.args = args
		m.newIDIdx = -1
		for i, spec := range args {
			if spec.Type == protocol.ArgNewID {
				m.newIDIdx = i
				break
			}
		}
		if m.Creates != "" && m.newIDIdx < 0 {
			panic(fmt.Sprintf("schema: %s.%s creates %s without a new_id argument", iface, m.Name, m.Creates))
		}
		if m.Since == 0 {
			m.Since = 1
		}
		if m.Since > version {
			panic(fmt.Sprintf("schema: %s.%s since %d exceeds interface version %d", iface, m.Name, m.Since, version))
		}
	}
}

// Freeze closes the registry to further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup resolves an interface by wire name.
func (r *Registry) Lookup(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iface, ok := r.byName[name]
	return iface, ok
}

// Names returns all registered interface names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
