// Package stylus owns the stylus extension pair: the zcr_stylus_v2
// manager global and the zcr_touch_stylus_v2 facets it constructs.
//
// Ownership boundary:
// - touch to touch_stylus association, at most one facet per touch
// - stylus event emission (tool, force, tilt)
package stylus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// Feature guards the 1:1 association between wl_touch resources and
// their stylus facets. Either side's destruction frees the slot.
type Feature struct {
	log zerolog.Logger

	mu       sync.RWMutex
	byTouch  map[*display.Resource]*display.Resource
	byStylus map[*display.Resource]*display.Resource
}

func New(log zerolog.Logger) *Feature {
	return &Feature{
		log:      log.With().Str("component", "stylus").Logger(),
		byTouch:  make(map[*display.Resource]*display.Resource),
		byStylus: make(map[*display.Resource]*display.Resource),
	}
}

// Register advertises zcr_stylus_v2 on srv.
func (f *Feature) Register(srv *display.Server) error {
	_, err := srv.AddGlobal(schema.StylusName, 0, f.bindManager)
	return err
}

func (f *Feature) bindManager(r *display.Resource) {
	r.SetHandler(display.HandlerFunc(f.handleManager))
}

func (f *Feature) handleManager(r *display.Resource, opcode uint16, args []protocol.Value) error {
	if opcode != schema.StylusGetTouchStylusOp {
		return nil
	}
	facet, ok := r.Client().Get(args[0].NewID)
	if !ok {
		return fmt.Errorf("stylus: touch_stylus %d not registered", args[0].NewID)
	}
	touch, ok := r.Client().Get(args[1].Object)
	if !ok {
		return fmt.Errorf("stylus: touch %d not registered", args[1].Object)
	}
	if touch.Interface().Name != schema.TouchName {
		return &display.ProtocolError{
			Code:    schema.DisplayErrorInvalidObject,
			Message: fmt.Sprintf("get_touch_stylus: object %d is %s, not %s", touch.ID(), touch.Interface().Name, schema.TouchName),
		}
	}

	// Association is recorded in the same critical section that decides
	// the request, so an accepted touch never appears unassociated.
	f.mu.Lock()
	if _, exists := f.byTouch[touch]; exists {
		f.mu.Unlock()
		return &display.ProtocolError{
			Code:    schema.StylusErrorTouchStylusExists,
			Message: fmt.Sprintf("wl_touch@%d already has a touch_stylus", touch.ID()),
		}
	}
	f.byTouch[touch] = facet
	f.byStylus[facet] = touch
	f.mu.Unlock()

	facet.SetHandler(display.HandlerFunc(handleFacet))
	facet.OnDestroy(f.dropByStylus)
	touch.OnDestroy(f.dropByTouch)
	f.log.Debug().
		Uint32("touch", touch.ID()).
		Uint32("touch_stylus", facet.ID()).
		Msg("touch_stylus created")
	return nil
}

func handleFacet(r *display.Resource, opcode uint16, _ []protocol.Value) error {
	if opcode == schema.TouchStylusDestroyOp {
		r.Destroy()
	}
	return nil
}

func (f *Feature) dropByStylus(facet *display.Resource) {
	f.mu.Lock()
	if touch, ok := f.byStylus[facet]; ok {
		delete(f.byStylus, facet)
		delete(f.byTouch, touch)
	}
	f.mu.Unlock()
}

func (f *Feature) dropByTouch(touch *display.Resource) {
	f.mu.Lock()
	if facet, ok := f.byTouch[touch]; ok {
		delete(f.byTouch, touch)
		delete(f.byStylus, facet)
	}
	f.mu.Unlock()
}

// StylusFor returns the facet associated with touch, if any.
func (f *Feature) StylusFor(touch *display.Resource) (*display.Resource, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	facet, ok := f.byTouch[touch]
	return facet, ok
}

// SendTool reports the tool type driving touch point id. It reports
// false when touch has no live facet.
func (f *Feature) SendTool(touch *display.Resource, id uint32, tool uint32) bool {
	facet, ok := f.StylusFor(touch)
	if !ok {
		return false
	}
	return facet.TryPost(schema.TouchStylusToolEvent,
		protocol.UintValue(id),
		protocol.UintValue(tool))
}

// SendForce queues a force update for touch point id. Force is converted
// to wire fixed point.
func (f *Feature) SendForce(touch *display.Resource, timeMs, id uint32, force float64) bool {
	facet, ok := f.StylusFor(touch)
	if !ok {
		return false
	}
	return facet.TryPost(schema.TouchStylusForceEvent,
		protocol.UintValue(timeMs),
		protocol.UintValue(id),
		protocol.FixedValue(protocol.FixedFromFloat(force)))
}

// SendTilt queues a tilt update for touch point id, in degrees from the
// surface normal.
func (f *Feature) SendTilt(touch *display.Resource, timeMs, id uint32, tiltX, tiltY float64) bool {
	facet, ok := f.StylusFor(touch)
	if !ok {
		return false
	}
	return facet.TryPost(schema.TouchStylusTiltEvent,
		protocol.UintValue(timeMs),
		protocol.UintValue(id),
		protocol.FixedValue(protocol.FixedFromFloat(tiltX)),
		protocol.FixedValue(protocol.FixedFromFloat(tiltY)))
}
