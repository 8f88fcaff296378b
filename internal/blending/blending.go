// Package blending owns the alpha compositing extension pair: the
// zcr_alpha_compositing_v1 manager global and the per-surface
// zcr_blending_v1 facets carrying blending state.
package blending

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// State is the blending configuration of one surface. Surfaces without
// a facet composite with the defaults (premultiplied, opaque).
type State struct {
	Equation uint32  `json:"equation"`
	Alpha    float64 `json:"alpha"`
}

// Entry is one surface's blending state for the debug surface.
type Entry struct {
	Client  string `json:"client"`
	Surface uint32 `json:"surface"`
	State
}

// Feature guards the 1:1 association between wl_surface resources and
// their blending facets and stores per-surface state.
type Feature struct {
	log zerolog.Logger

	mu        sync.RWMutex
	bySurface map[*display.Resource]*display.Resource
	byFacet   map[*display.Resource]*display.Resource
	states    map[*display.Resource]State
}

func New(log zerolog.Logger) *Feature {
	return &Feature{
		log:       log.With().Str("component", "blending").Logger(),
		bySurface: make(map[*display.Resource]*display.Resource),
		byFacet:   make(map[*display.Resource]*display.Resource),
		states:    make(map[*display.Resource]State),
	}
}

// Register advertises zcr_alpha_compositing_v1 on srv.
func (f *Feature) Register(srv *display.Server) error {
	_, err := srv.AddGlobal(schema.AlphaCompositingName, 0, f.bindManager)
	return err
}

// RegisterDebug exposes the blending table on the debug router.
func (f *Feature) RegisterDebug(router gin.IRouter) {
	router.GET("/blending", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"blending": f.Snapshot()})
	})
}

func (f *Feature) bindManager(r *display.Resource) {
	r.SetHandler(display.HandlerFunc(f.handleManager))
}

func (f *Feature) handleManager(r *display.Resource, opcode uint16, args []protocol.Value) error {
	switch opcode {
	case schema.AlphaCompositingDestroyOp:
		r.Destroy()
	case schema.AlphaCompositingGetBlendingOp:
		facet, ok := r.Client().Get(args[0].NewID)
		if !ok {
			return fmt.Errorf("blending: facet %d not registered", args[0].NewID)
		}
		surface, ok := r.Client().Get(args[1].Object)
		if !ok {
			return fmt.Errorf("blending: surface %d not registered", args[1].Object)
		}
		if surface.Interface().Name != schema.SurfaceName {
			return &display.ProtocolError{
				Code:    schema.DisplayErrorInvalidObject,
				Message: fmt.Sprintf("get_blending: object %d is %s, not %s", surface.ID(), surface.Interface().Name, schema.SurfaceName),
			}
		}

		f.mu.Lock()
		if _, exists := f.bySurface[surface]; exists {
			f.mu.Unlock()
			return &display.ProtocolError{
				Code:    schema.AlphaCompositingErrorBlendingExists,
				Message: fmt.Sprintf("wl_surface@%d already has a blending object", surface.ID()),
			}
		}
		f.bySurface[surface] = facet
		f.byFacet[facet] = surface
		f.states[surface] = State{Equation: schema.BlendingEquationPremult, Alpha: 1}
		f.mu.Unlock()

		facet.SetHandler(display.HandlerFunc(f.handleFacet))
		facet.OnDestroy(f.dropByFacet)
		surface.OnDestroy(f.dropBySurface)
		f.log.Debug().
			Uint32("surface", surface.ID()).
			Uint32("blending", facet.ID()).
			Msg("blending created")
	}
	return nil
}

func (f *Feature) handleFacet(r *display.Resource, opcode uint16, args []protocol.Value) error {
	switch opcode {
	case schema.BlendingDestroyOp:
		r.Destroy()
	case schema.BlendingSetBlendingOp:
		eq := args[0].Uint
		if eq > schema.BlendingEquationCoverage {
			return &display.ProtocolError{
				Code:    schema.DisplayErrorInvalidMethod,
				Message: fmt.Sprintf("invalid blending equation %d", eq),
			}
		}
		f.mu.Lock()
		if surface, ok := f.byFacet[r]; ok {
			st := f.states[surface]
			st.Equation = eq
			f.states[surface] = st
		}
		f.mu.Unlock()
	case schema.BlendingSetAlphaOp:
		f.mu.Lock()
		if surface, ok := f.byFacet[r]; ok {
			st := f.states[surface]
			st.Alpha = args[0].Fixed.Float()
			f.states[surface] = st
		}
		f.mu.Unlock()
	}
	return nil
}

func (f *Feature) dropByFacet(facet *display.Resource) {
	f.mu.Lock()
	if surface, ok := f.byFacet[facet]; ok {
		delete(f.byFacet, facet)
		delete(f.bySurface, surface)
		delete(f.states, surface)
	}
	f.mu.Unlock()
}

func (f *Feature) dropBySurface(surface *display.Resource) {
	f.mu.Lock()
	if facet, ok := f.bySurface[surface]; ok {
		delete(f.bySurface, surface)
		delete(f.byFacet, facet)
	}
	delete(f.states, surface)
	f.mu.Unlock()
}

// StateOf returns the blending state recorded for surface.
func (f *Feature) StateOf(surface *display.Resource) (State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.states[surface]
	return st, ok
}

// Snapshot returns every surface's blending state, ordered by client id
// then surface id.
func (f *Feature) Snapshot() []Entry {
	f.mu.RLock()
	out := make([]Entry, 0, len(f.states))
	for surface, st := range f.states {
		out = append(out, Entry{
			Client:  surface.Client().ID(),
			Surface: surface.ID(),
			State:   st,
		})
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Client != out[j].Client {
			return out[i].Client < out[j].Client
		}
		return out[i].Surface < out[j].Surface
	})
	return out
}
