package client

import (
	"fmt"
	"sync"

	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// EventHandler receives decoded events for one object.
type EventHandler func(obj *Object, opcode uint16, args []protocol.Value)

// Object is one client-side protocol object. Ids are client-allocated;
// the object stays in the table until the server confirms destruction
// with delete_id.
type Object struct {
	id      uint32
	iface   *schema.Interface
	version uint32
	conn    *Conn

	mu      sync.Mutex
	handler EventHandler
}

func (o *Object) ID() uint32                   { return o.id }
func (o *Object) Interface() *schema.Interface { return o.iface }
func (o *Object) Version() uint32              { return o.version }

// SetHandler installs the event handler for o.
func (o *Object) SetHandler(h EventHandler) {
	o.mu.Lock()
	o.handler = h
	o.mu.Unlock()
}

func (o *Object) handlerRef() EventHandler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handler
}

func (o *Object) request(opcode uint16) (*schema.Message, error) {
	msg, ok := o.iface.Request(opcode)
	if !ok {
		return nil, fmt.Errorf("client: %s has no request opcode %d", o.iface.Name, opcode)
	}
	if msg.Since > o.version {
		return nil, fmt.Errorf("client: %s.%s requires version %d, bound at %d", o.iface.Name, msg.Name, msg.Since, o.version)
	}
	return msg, nil
}

// Request sends a non-constructing request on o.
func (o *Object) Request(opcode uint16, args ...protocol.Value) error {
	msg, err := o.request(opcode)
	if err != nil {
		return err
	}
	if msg.Creates != "" {
		return fmt.Errorf("client: %s.%s constructs an object, use RequestNew", o.iface.Name, msg.Name)
	}
	return o.conn.send(o.id, opcode, msg.Args(), args)
}

// RequestNew sends a constructing request on o, allocating and
// returning the new object. extra supplies the non-new_id arguments in
// signature order.
func (o *Object) RequestNew(opcode uint16, extra ...protocol.Value) (*Object, error) {
	msg, err := o.request(opcode)
	if err != nil {
		return nil, err
	}
	if msg.Creates == "" {
		return nil, fmt.Errorf("client: %s.%s constructs nothing", o.iface.Name, msg.Name)
	}
	target, ok := o.conn.registry.Lookup(msg.Creates)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInterface, msg.Creates)
	}
	obj := o.conn.allocate(target, min(o.version, target.Version))
	args := make([]protocol.Value, 0, len(msg.Args()))
	next := 0
	for i := range msg.Args() {
		if i == msg.NewIDIndex() {
			args = append(args, protocol.NewIDValue(obj.id))
			continue
		}
		if next >= len(extra) {
			o.conn.release(obj.id)
			return nil, fmt.Errorf("client: %s.%s wants %d extra arguments, got %d", o.iface.Name, msg.Name, len(msg.Args())-1, len(extra))
		}
		args = append(args, extra[next])
		next++
	}
	if next != len(extra) {
		o.conn.release(obj.id)
		return nil, fmt.Errorf("client: %s.%s wants %d extra arguments, got %d", o.iface.Name, msg.Name, len(msg.Args())-1, len(extra))
	}
	if err := o.conn.send(o.id, opcode, msg.Args(), args); err != nil {
		o.conn.release(obj.id)
		return nil, err
	}
	return obj, nil
}
