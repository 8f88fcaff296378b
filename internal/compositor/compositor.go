// Package compositor owns the surface and shared-memory side of the
// protocol: wl_compositor, wl_surface, wl_shm and wl_shm_pool.
package compositor

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

// Feature tracks live surfaces and shared-memory pools across clients.
type Feature struct {
	log zerolog.Logger

	mu       sync.RWMutex
	surfaces map[*display.Resource]struct{}
	pools    map[*display.Resource]*pool
}

// pool is one client shared-memory pool. The descriptor stays open until
// the pool resource is destroyed.
type pool struct {
	file *os.File
	size int32
}

func New(log zerolog.Logger) *Feature {
	return &Feature{
		log:      log.With().Str("component", "compositor").Logger(),
		surfaces: make(map[*display.Resource]struct{}),
		pools:    make(map[*display.Resource]*pool),
	}
}

// Register advertises wl_compositor and wl_shm on srv.
func (f *Feature) Register(srv *display.Server) error {
	if _, err := srv.AddGlobal(schema.CompositorName, 0, f.bindCompositor); err != nil {
		return err
	}
	if _, err := srv.AddGlobal(schema.ShmName, 0, f.bindShm); err != nil {
		return err
	}
	return nil
}

func (f *Feature) bindCompositor(r *display.Resource) {
	r.SetHandler(display.HandlerFunc(f.handleCompositor))
}

// bindShm announces the supported pixel formats as part of the bind.
func (f *Feature) bindShm(r *display.Resource) {
	r.SetHandler(display.HandlerFunc(f.handleShm))
	r.Post(schema.ShmFormatEvent, protocol.UintValue(schema.ShmFormatARGB8888))
	r.Post(schema.ShmFormatEvent, protocol.UintValue(schema.ShmFormatXRGB8888))
}

func (f *Feature) handleCompositor(r *display.Resource, opcode uint16, args []protocol.Value) error {
	if opcode != schema.CompositorCreateSurfaceOp {
		return nil
	}
	surf, ok := r.Client().Get(args[0].NewID)
	if !ok {
		return fmt.Errorf("compositor: surface %d not registered", args[0].NewID)
	}
	f.adoptSurface(surf)
	return nil
}

func (f *Feature) adoptSurface(surf *display.Resource) {
	surf.SetHandler(display.HandlerFunc(handleSurface))
	f.mu.Lock()
	f.surfaces[surf] = struct{}{}
	f.mu.Unlock()
	surf.OnDestroy(func(r *display.Resource) {
		f.mu.Lock()
		delete(f.surfaces, r)
		f.mu.Unlock()
	})
	f.log.Debug().Uint32("id", surf.ID()).Msg("surface created")
}

func handleSurface(r *display.Resource, opcode uint16, _ []protocol.Value) error {
	if opcode == schema.SurfaceDestroyOp {
		r.Destroy()
	}
	return nil
}

func (f *Feature) handleShm(r *display.Resource, opcode uint16, args []protocol.Value) error {
	if opcode != schema.ShmCreatePoolOp {
		return nil
	}
	p, ok := r.Client().Get(args[0].NewID)
	if !ok {
		return fmt.Errorf("compositor: pool %d not registered", args[0].NewID)
	}
	file := os.NewFile(uintptr(args[1].FD), "wl_shm-pool")
	size := args[2].Int
	if size <= 0 {
		_ = file.Close()
		return &display.ProtocolError{
			Code:    schema.ShmErrorInvalidStride,
			Message: fmt.Sprintf("invalid pool size %d", size),
		}
	}
	f.adoptPool(p, file, size)
	return nil
}

func (f *Feature) adoptPool(res *display.Resource, file *os.File, size int32) {
	res.SetHandler(display.HandlerFunc(f.handlePool))
	f.mu.Lock()
	f.pools[res] = &pool{file: file, size: size}
	f.mu.Unlock()
	res.OnDestroy(func(r *display.Resource) {
		f.mu.Lock()
		delete(f.pools, r)
		f.mu.Unlock()
		_ = file.Close()
	})
	f.log.Debug().Uint32("id", res.ID()).Int32("size", size).Msg("shm pool created")
}

func (f *Feature) handlePool(r *display.Resource, opcode uint16, args []protocol.Value) error {
	switch opcode {
	case schema.ShmPoolDestroyOp:
		r.Destroy()
	case schema.ShmPoolResizeOp:
		size := args[0].Int
		f.mu.Lock()
		p, ok := f.pools[r]
		if !ok {
			f.mu.Unlock()
			return fmt.Errorf("compositor: resize on untracked pool %d", r.ID())
		}
		if size < p.size {
			f.mu.Unlock()
			return &display.ProtocolError{
				Code:    schema.ShmErrorInvalidFD,
				Message: fmt.Sprintf("shrinking pool from %d to %d", p.size, size),
			}
		}
		p.size = size
		f.mu.Unlock()
	}
	return nil
}

// Surfaces returns the live surfaces sorted by resource id.
func (f *Feature) Surfaces() []*display.Resource {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*display.Resource, 0, len(f.surfaces))
	for r := range f.surfaces {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SurfaceCount returns the number of live surfaces across all clients.
func (f *Feature) SurfaceCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.surfaces)
}

// PoolSize reports the current size of a live pool.
func (f *Feature) PoolSize(r *display.Resource) (int32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[r]
	if !ok {
		return 0, false
	}
	return p.size, true
}
