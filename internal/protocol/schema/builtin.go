package schema

// Wire names of the built-in interfaces.
const (
	DisplayName          = "wl_display"
	CallbackName         = "wl_callback"
	RegistryName         = "wl_registry"
	CompositorName       = "wl_compositor"
	SurfaceName          = "wl_surface"
	ShmName              = "wl_shm"
	ShmPoolName          = "wl_shm_pool"
	SeatName             = "wl_seat"
	TouchName            = "wl_touch"
	StylusName           = "zcr_stylus_v2"
	TouchStylusName      = "zcr_touch_stylus_v2"
	AlphaCompositingName = "zcr_alpha_compositing_v1"
	BlendingName         = "zcr_blending_v1"
)

// Request opcodes.
const (
	DisplaySyncOp        uint16 = 0
	DisplayGetRegistryOp uint16 = 1

	RegistryBindOp uint16 = 0

	CompositorCreateSurfaceOp uint16 = 0

	SurfaceDestroyOp uint16 = 0

	ShmCreatePoolOp uint16 = 0

	ShmPoolDestroyOp uint16 = 0
	ShmPoolResizeOp  uint16 = 1

	SeatGetTouchOp uint16 = 0

	TouchReleaseOp uint16 = 0

	StylusGetTouchStylusOp uint16 = 0

	TouchStylusDestroyOp uint16 = 0

	AlphaCompositingDestroyOp     uint16 = 0
	AlphaCompositingGetBlendingOp uint16 = 1

	BlendingDestroyOp     uint16 = 0
	BlendingSetBlendingOp uint16 = 1
	BlendingSetAlphaOp    uint16 = 2
)

// Event opcodes.
const (
	DisplayErrorEvent    uint16 = 0
	DisplayDeleteIDEvent uint16 = 1

	CallbackDoneEvent uint16 = 0

	RegistryGlobalEvent       uint16 = 0
	RegistryGlobalRemoveEvent uint16 = 1

	ShmFormatEvent uint16 = 0

	SeatCapabilitiesEvent uint16 = 0

	TouchDownEvent   uint16 = 0
	TouchUpEvent     uint16 = 1
	TouchMotionEvent uint16 = 2
	TouchFrameEvent  uint16 = 3
	TouchCancelEvent uint16 = 4

	TouchStylusToolEvent  uint16 = 0
	TouchStylusForceEvent uint16 = 1
	TouchStylusTiltEvent  uint16 = 2
)

// wl_display.error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// wl_shm pixel formats and protocol errors.
const (
	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1

	ShmErrorInvalidFormat uint32 = 0
	ShmErrorInvalidStride uint32 = 1
	ShmErrorInvalidFD     uint32 = 2
)

// wl_seat capability bits.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
	SeatCapabilityTouch    uint32 = 4
)

// zcr_stylus_v2 protocol errors and tool types.
const (
	StylusErrorTouchStylusExists uint32 = 0

	ToolTypeTouch  uint32 = 1
	ToolTypePen    uint32 = 2
	ToolTypeEraser uint32 = 3
)

// zcr_alpha_compositing_v1 protocol errors and blending equations.
const (
	AlphaCompositingErrorBlendingExists uint32 = 0

	BlendingEquationNone     uint32 = 0
	BlendingEquationPremult  uint32 = 1
	BlendingEquationCoverage uint32 = 2
)

// Builtin returns a fresh registry populated with the built-in contract.
// The result is not frozen; callers may add interfaces before handing it
// to a server, which freezes it.
func Builtin() *Registry {
	r := NewRegistry()
	for _, iface := range builtinInterfaces() {
		r.Register(iface)
	}
	return r
}

func builtinInterfaces() []*Interface {
	return []*Interface{
		{
			Name:    DisplayName,
			Version: 1,
			Requests: []Message{
				{Name: "sync", Sig: "n", Creates: CallbackName},
				{Name: "get_registry", Sig: "n", Creates: RegistryName},
			},
			Events: []Message{
				{Name: "error", Sig: "?ous"},
				{Name: "delete_id", Sig: "u"},
			},
		},
		{
			Name:    CallbackName,
			Version: 1,
			Events: []Message{
				{Name: "done", Sig: "u"},
			},
		},
		{
			Name:    RegistryName,
			Version: 1,
			Requests: []Message{
				{Name: "bind", Sig: "usun"},
			},
			Events: []Message{
				{Name: "global", Sig: "usu"},
				{Name: "global_remove", Sig: "u"},
			},
		},
		{
			Name:    CompositorName,
			Version: 1,
			Requests: []Message{
				{Name: "create_surface", Sig: "n", Creates: SurfaceName},
			},
		},
		{
			Name:    SurfaceName,
			Version: 1,
			Requests: []Message{
				{Name: "destroy", Sig: ""},
			},
		},
		{
			Name:    ShmName,
			Version: 1,
			Requests: []Message{
				{Name: "create_pool", Sig: "nhi", Creates: ShmPoolName},
			},
			Events: []Message{
				{Name: "format", Sig: "u"},
			},
		},
		{
			Name:    ShmPoolName,
			Version: 1,
			Requests: []Message{
				{Name: "destroy", Sig: ""},
				{Name: "resize", Sig: "i"},
			},
		},
		{
			Name:    SeatName,
			Version: 1,
			Requests: []Message{
				{Name: "get_touch", Sig: "n", Creates: TouchName},
			},
			Events: []Message{
				{Name: "capabilities", Sig: "u"},
			},
		},
		{
			Name:    TouchName,
			Version: 1,
			Requests: []Message{
				{Name: "release", Sig: ""},
			},
			Events: []Message{
				{Name: "down", Sig: "uuoiff"},
				{Name: "up", Sig: "uui"},
				{Name: "motion", Sig: "uiff"},
				{Name: "frame", Sig: ""},
				{Name: "cancel", Sig: ""},
			},
		},
		{
			Name:    StylusName,
			Version: 2,
			Requests: []Message{
				{Name: "get_touch_stylus", Sig: "no", Creates: TouchStylusName},
			},
		},
		{
			Name:    TouchStylusName,
			Version: 2,
			Requests: []Message{
				{Name: "destroy", Sig: ""},
			},
			Events: []Message{
				{Name: "tool", Sig: "uu"},
				{Name: "force", Sig: "uuf"},
				{Name: "tilt", Sig: "uuff"},
			},
		},
		{
			Name:    AlphaCompositingName,
			Version: 1,
			Requests: []Message{
				{Name: "destroy", Sig: ""},
				{Name: "get_blending", Sig: "no", Creates: BlendingName},
			},
		},
		{
			Name:    BlendingName,
			Version: 1,
			Requests: []Message{
				{Name: "destroy", Sig: ""},
				{Name: "set_blending", Sig: "u"},
				{Name: "set_alpha", Sig: "f"},
			},
		},
	}
}
