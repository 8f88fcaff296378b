// Package sampler synthesizes touch and stylus input for development
// runs without input hardware. Each connected client holding a touch
// resource receives an endless series of pen strokes over its first
// surface.
package sampler

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/compositor"
	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol/schema"
	"github.com/exogonal/waycore/internal/seat"
	"github.com/exogonal/waycore/internal/stylus"
)

// One stroke is a down, motionSteps motion updates, then an up. Every
// phase closes with a frame so clients see complete batches.
const motionSteps = 16

type Sampler struct {
	log  zerolog.Logger
	seat *seat.Feature
	comp *compositor.Feature
	sty  *stylus.Feature

	interval time.Duration
	started  time.Time
	strokes  map[*display.Client]*stroke
}

// stroke is the per-client cycle position.
type stroke struct {
	point int32
	step  int
}

func New(log zerolog.Logger, seatF *seat.Feature, compF *compositor.Feature, styF *stylus.Feature, interval time.Duration) *Sampler {
	return &Sampler{
		log:      log.With().Str("component", "sampler").Logger(),
		seat:     seatF,
		comp:     compF,
		sty:      styF,
		interval: interval,
		started:  time.Now(),
		strokes:  make(map[*display.Client]*stroke),
	}
}

// Run advances every client's stroke once per interval until ctx is
// done.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("synthetic stylus source running")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	now := uint32(time.Since(s.started).Milliseconds())
	clients := s.seat.Clients()
	live := make(map[*display.Client]struct{}, len(clients))
	for _, c := range clients {
		live[c] = struct{}{}
		s.advance(c, now)
	}
	for c := range s.strokes {
		if _, ok := live[c]; !ok {
			delete(s.strokes, c)
		}
	}
}

func (s *Sampler) advance(c *display.Client, now uint32) {
	surface := s.surfaceOf(c)
	if surface == nil {
		return
	}
	touches := s.seat.Touches(c)
	if len(touches) == 0 {
		return
	}

	st, ok := s.strokes[c]
	if !ok {
		st = &stroke{}
		s.strokes[c] = st
	}
	x, y := strokePoint(st.step)

	switch {
	case st.step == 0:
		s.seat.InjectDown(surface, now, st.point, x, y)
		for _, t := range touches {
			s.sty.SendTool(t, uint32(st.point), schema.ToolTypePen)
		}
		st.step++
	case st.step <= motionSteps:
		s.seat.InjectMotion(c, now, st.point, x, y)
		phase := float64(st.step) / float64(motionSteps)
		for _, t := range touches {
			s.sty.SendForce(t, now, uint32(st.point), 0.25+0.75*math.Sin(phase*math.Pi))
			s.sty.SendTilt(t, now, uint32(st.point), 30*math.Cos(2*math.Pi*phase), 15*math.Sin(2*math.Pi*phase))
		}
		st.step++
	default:
		s.seat.InjectUp(c, now, st.point)
		st.point++
		st.step = 0
	}

	if err := s.seat.InjectFrame(c); err != nil {
		s.log.Debug().Err(err).Str("client", c.ID()).Msg("frame flush failed")
	}
}

// surfaceOf picks c's lowest-id live surface.
func (s *Sampler) surfaceOf(c *display.Client) *display.Resource {
	for _, surf := range s.comp.Surfaces() {
		if surf.Client() == c && !surf.Destroyed() {
			return surf
		}
	}
	return nil
}

// strokePoint traces a pen arc across a nominal 800x600 surface.
func strokePoint(step int) (float64, float64) {
	phase := float64(step) / float64(motionSteps)
	x := 100 + 600*phase
	y := 300 + 200*math.Sin(phase*math.Pi)
	return x, y
}
