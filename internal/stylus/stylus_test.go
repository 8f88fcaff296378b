package stylus

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/client"
	"github.com/exogonal/waycore/internal/compositor"
	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
	"github.com/exogonal/waycore/internal/seat"
	"github.com/exogonal/waycore/internal/transport"
)

type fixture struct {
	feat  *Feature
	seat  *seat.Feature
	comp  *compositor.Feature
	local *display.Client
	cl    *client.Conn

	mgr   *client.Object
	touch *client.Object
}

func startFixture(t *testing.T) *fixture {
	t.Helper()
	srv := display.NewServer(display.Config{Logger: zerolog.Nop()})
	fx := &fixture{
		feat: New(zerolog.Nop()),
		seat: seat.New(zerolog.Nop()),
		comp: compositor.New(zerolog.Nop()),
	}
	if err := fx.comp.Register(srv); err != nil {
		t.Fatalf("register compositor: %v", err)
	}
	if err := fx.seat.Register(srv); err != nil {
		t.Fatalf("register seat: %v", err)
	}
	if err := fx.feat.Register(srv); err != nil {
		t.Fatalf("register stylus: %v", err)
	}
	a, b, err := transport.Pair()
	if err != nil {
		t.Fatalf("socket pair: %v", err)
	}
	local, err := srv.Connect(a)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	cl, err := client.New(b, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close() })
	if _, err := cl.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}
	fx.local = local
	fx.cl = cl

	seatObj, err := cl.BindInterface(schema.SeatName, 0)
	if err != nil {
		t.Fatalf("bind seat: %v", err)
	}
	fx.touch, err = seatObj.RequestNew(schema.SeatGetTouchOp)
	if err != nil {
		t.Fatalf("get_touch: %v", err)
	}
	fx.mgr, err = cl.BindInterface(schema.StylusName, 0)
	if err != nil {
		t.Fatalf("bind stylus: %v", err)
	}
	if err := cl.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return fx
}

func (fx *fixture) serverTouch(t *testing.T) *display.Resource {
	t.Helper()
	touches := fx.seat.Touches(fx.local)
	if len(touches) != 1 {
		t.Fatalf("server touches = %v", touches)
	}
	return touches[0]
}

func (fx *fixture) associate(t *testing.T) *client.Object {
	t.Helper()
	facet, err := fx.mgr.RequestNew(schema.StylusGetTouchStylusOp, protocol.ObjectValue(fx.touch.ID()))
	if err != nil {
		t.Fatalf("get_touch_stylus: %v", err)
	}
	if err := fx.cl.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return facet
}

type stylusRecord struct {
	opcode       uint16
	timeMs, id   uint32
	tool         uint32
	force        protocol.Fixed
	tiltX, tiltY protocol.Fixed
}

func recordFacet(facet *client.Object, into *[]stylusRecord) {
	facet.SetHandler(func(_ *client.Object, opcode uint16, args []protocol.Value) {
		rec := stylusRecord{opcode: opcode}
		switch opcode {
		case schema.TouchStylusToolEvent:
			rec.id = args[0].Uint
			rec.tool = args[1].Uint
		case schema.TouchStylusForceEvent:
			rec.timeMs = args[0].Uint
			rec.id = args[1].Uint
			rec.force = args[2].Fixed
		case schema.TouchStylusTiltEvent:
			rec.timeMs = args[0].Uint
			rec.id = args[1].Uint
			rec.tiltX, rec.tiltY = args[2].Fixed, args[3].Fixed
		}
		*into = append(*into, rec)
	})
}

func TestAssociateAndEmit(t *testing.T) {
	fx := startFixture(t)
	facet := fx.associate(t)
	srvTouch := fx.serverTouch(t)

	if srvFacet, ok := fx.feat.StylusFor(srvTouch); !ok || srvFacet.ID() != facet.ID() {
		t.Fatalf("StylusFor = %v, ok=%v", srvFacet, ok)
	}

	var got []stylusRecord
	recordFacet(facet, &got)

	if !fx.feat.SendTool(srvTouch, 0, schema.ToolTypeEraser) {
		t.Fatalf("SendTool reported no facet")
	}
	if !fx.feat.SendForce(srvTouch, 40, 0, 0.5) {
		t.Fatalf("SendForce reported no facet")
	}
	if !fx.feat.SendTilt(srvTouch, 40, 0, -22.5, 3.25) {
		t.Fatalf("SendTilt reported no facet")
	}
	if err := fx.local.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := fx.cl.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("received %d events, want 3: %+v", len(got), got)
	}
	if got[0].opcode != schema.TouchStylusToolEvent || got[0].tool != schema.ToolTypeEraser {
		t.Fatalf("tool = %+v", got[0])
	}
	if got[1].opcode != schema.TouchStylusForceEvent || got[1].timeMs != 40 || got[1].force != protocol.FixedFromFloat(0.5) {
		t.Fatalf("force = %+v", got[1])
	}
	if got[2].opcode != schema.TouchStylusTiltEvent ||
		got[2].tiltX != protocol.FixedFromFloat(-22.5) || got[2].tiltY != protocol.FixedFromFloat(3.25) {
		t.Fatalf("tilt = %+v", got[2])
	}
}

func TestSendWithoutFacet(t *testing.T) {
	fx := startFixture(t)
	srvTouch := fx.serverTouch(t)

	if fx.feat.SendTool(srvTouch, 0, schema.ToolTypePen) {
		t.Fatalf("SendTool succeeded without an association")
	}
	if fx.feat.SendForce(srvTouch, 1, 0, 1) {
		t.Fatalf("SendForce succeeded without an association")
	}
}

func TestFacetDestroyFreesAssociation(t *testing.T) {
	fx := startFixture(t)
	facet := fx.associate(t)
	srvTouch := fx.serverTouch(t)

	if err := facet.Request(schema.TouchStylusDestroyOp); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := fx.cl.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := fx.feat.StylusFor(srvTouch); ok {
		t.Fatalf("association survived facet destroy")
	}

	// The slot is free for a fresh facet.
	again := fx.associate(t)
	if srvFacet, ok := fx.feat.StylusFor(srvTouch); !ok || srvFacet.ID() != again.ID() {
		t.Fatalf("re-association failed: %v, ok=%v", srvFacet, ok)
	}
}

func TestTouchDestroyFreesAssociation(t *testing.T) {
	fx := startFixture(t)
	fx.associate(t)
	srvTouch := fx.serverTouch(t)

	if err := fx.touch.Request(schema.TouchReleaseOp); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := fx.cl.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := fx.feat.StylusFor(srvTouch); ok {
		t.Fatalf("association survived touch release")
	}
}

func TestDuplicateAssociationIsFatal(t *testing.T) {
	fx := startFixture(t)
	fx.associate(t)

	if _, err := fx.mgr.RequestNew(schema.StylusGetTouchStylusOp, protocol.ObjectValue(fx.touch.ID())); err != nil {
		t.Fatalf("send duplicate: %v", err)
	}
	err := fx.cl.Sync()
	var de *client.DisplayError
	if !errors.As(err, &de) {
		t.Fatalf("duplicate error = %v, want DisplayError", err)
	}
	if de.Code != schema.StylusErrorTouchStylusExists || de.Object != fx.mgr.ID() {
		t.Fatalf("error = %+v, want touch_stylus_exists on manager %d", de, fx.mgr.ID())
	}
}

func TestAssociationRejectsNonTouchObject(t *testing.T) {
	fx := startFixture(t)
	comp, err := fx.cl.BindInterface(schema.CompositorName, 0)
	if err != nil {
		t.Fatalf("bind compositor: %v", err)
	}
	surf, err := comp.RequestNew(schema.CompositorCreateSurfaceOp)
	if err != nil {
		t.Fatalf("create_surface: %v", err)
	}
	if _, err := fx.mgr.RequestNew(schema.StylusGetTouchStylusOp, protocol.ObjectValue(surf.ID())); err != nil {
		t.Fatalf("send: %v", err)
	}

	err = fx.cl.Sync()
	var de *client.DisplayError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want DisplayError", err)
	}
	if de.Code != schema.DisplayErrorInvalidObject {
		t.Fatalf("code = %d, want invalid_object", de.Code)
	}
}
