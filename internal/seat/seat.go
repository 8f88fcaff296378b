// Package seat owns input capability advertisement and touch event
// delivery: wl_seat and wl_touch, plus the injection API the server's
// input sources drive.
package seat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// Feature tracks live wl_touch resources and turns injected touch points
// into event batches. Injection may run on any goroutine; batches reach
// the wire when InjectFrame flushes them, so correlated events queued
// before the frame share its delivery.
type Feature struct {
	log zerolog.Logger
	srv *display.Server

	mu      sync.RWMutex
	touches map[*display.Resource]struct{}
}

func New(log zerolog.Logger) *Feature {
	return &Feature{
		log:     log.With().Str("component", "seat").Logger(),
		touches: make(map[*display.Resource]struct{}),
	}
}

// Register advertises wl_seat on srv.
func (f *Feature) Register(srv *display.Server) error {
	f.srv = srv
	_, err := srv.AddGlobal(schema.SeatName, 0, f.bindSeat)
	return err
}

// bindSeat announces the touch capability as part of the bind.
func (f *Feature) bindSeat(r *display.Resource) {
	r.SetHandler(display.HandlerFunc(f.handleSeat))
	r.Post(schema.SeatCapabilitiesEvent, protocol.UintValue(schema.SeatCapabilityTouch))
}

func (f *Feature) handleSeat(r *display.Resource, opcode uint16, args []protocol.Value) error {
	if opcode != schema.SeatGetTouchOp {
		return nil
	}
	touch, ok := r.Client().Get(args[0].NewID)
	if !ok {
		return fmt.Errorf("seat: touch %d not registered", args[0].NewID)
	}
	touch.SetHandler(display.HandlerFunc(handleTouch))
	f.mu.Lock()
	f.touches[touch] = struct{}{}
	f.mu.Unlock()
	touch.OnDestroy(func(t *display.Resource) {
		f.mu.Lock()
		delete(f.touches, t)
		f.mu.Unlock()
	})
	f.log.Debug().Uint32("id", touch.ID()).Msg("touch created")
	return nil
}

func handleTouch(r *display.Resource, opcode uint16, _ []protocol.Value) error {
	if opcode == schema.TouchReleaseOp {
		r.Destroy()
	}
	return nil
}

// touchesFor snapshots the live touch resources of one client.
func (f *Feature) touchesFor(c *display.Client) []*display.Resource {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*display.Resource
	for t := range f.touches {
		if t.Client() == c {
			out = append(out, t)
		}
	}
	return out
}

// Touches returns c's live touch resources sorted by id.
func (f *Feature) Touches(c *display.Client) []*display.Resource {
	out := f.touchesFor(c)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Clients returns the clients holding at least one touch resource,
// sorted by client id.
func (f *Feature) Clients() []*display.Client {
	f.mu.RLock()
	seen := make(map[*display.Client]struct{})
	for t := range f.touches {
		seen[t.Client()] = struct{}{}
	}
	f.mu.RUnlock()
	out := make([]*display.Client, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// InjectDown queues a touch-down for point id at (x, y) on surface for
// every touch resource of the surface's client and returns the event
// serial. The batch stays queued until InjectFrame.
func (f *Feature) InjectDown(surface *display.Resource, timeMs uint32, id int32, x, y float64) uint32 {
	serial := f.srv.NextSerial()
	for _, t := range f.touchesFor(surface.Client()) {
		t.TryPost(schema.TouchDownEvent,
			protocol.UintValue(serial),
			protocol.UintValue(timeMs),
			protocol.ObjectValue(surface.ID()),
			protocol.IntValue(id),
			protocol.FixedValue(protocol.FixedFromFloat(x)),
			protocol.FixedValue(protocol.FixedFromFloat(y)))
	}
	return serial
}

// InjectMotion queues a motion update for point id at (x, y).
func (f *Feature) InjectMotion(c *display.Client, timeMs uint32, id int32, x, y float64) {
	for _, t := range f.touchesFor(c) {
		t.TryPost(schema.TouchMotionEvent,
			protocol.UintValue(timeMs),
			protocol.IntValue(id),
			protocol.FixedValue(protocol.FixedFromFloat(x)),
			protocol.FixedValue(protocol.FixedFromFloat(y)))
	}
}

// InjectUp queues a touch-up for point id and returns the event serial.
func (f *Feature) InjectUp(c *display.Client, timeMs uint32, id int32) uint32 {
	serial := f.srv.NextSerial()
	for _, t := range f.touchesFor(c) {
		t.TryPost(schema.TouchUpEvent,
			protocol.UintValue(serial),
			protocol.UintValue(timeMs),
			protocol.IntValue(id))
	}
	return serial
}

// InjectFrame closes the current batch: it queues the frame marker and
// flushes everything queued so far to c's wire.
func (f *Feature) InjectFrame(c *display.Client) error {
	for _, t := range f.touchesFor(c) {
		t.TryPost(schema.TouchFrameEvent)
	}
	return c.Flush()
}

// InjectCancel tells c's touch resources the current sequence is void
// and flushes immediately.
func (f *Feature) InjectCancel(c *display.Client) error {
	for _, t := range f.touchesFor(c) {
		t.TryPost(schema.TouchCancelEvent)
	}
	return c.Flush()
}
