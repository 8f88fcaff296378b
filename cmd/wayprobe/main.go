package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/exogonal/waycore/internal/client"
	"github.com/exogonal/waycore/internal/config"
	"github.com/exogonal/waycore/internal/observability"
	"github.com/exogonal/waycore/internal/protocol"
	"github.com/exogonal/waycore/internal/protocol/schema"
)

func main() {
	var (
		socket   string
		listOnly bool
		count    int
		timeout  time.Duration
		level    string
	)
	flag.StringVar(&socket, "socket", "waycore-0", "display socket name or absolute path")
	flag.BoolVar(&listOnly, "list", false, "list advertised globals and exit")
	flag.IntVar(&count, "count", 0, "stop after this many events (0 = run until the server closes)")
	flag.DurationVar(&timeout, "timeout", 0, "stop after this duration (0 = no limit)")
	flag.StringVar(&level, "log-level", "warn", "probe diagnostic log level")
	flag.Parse()

	log := observability.InitLogger("wayprobe", level, "console")
	if err := run(log, socket, listOnly, count, timeout); err != nil {
		fmt.Fprintf(os.Stderr, "wayprobe: %v\n", err)
		os.Exit(1)
	}
}

func run(log zerolog.Logger, socket string, listOnly bool, count int, timeout time.Duration) error {
	path := config.ResolveSocket(socket)
	cl, err := client.Dial(path, nil, log)
	if err != nil {
		return fmt.Errorf("dial %s: %w", path, err)
	}
	defer cl.Close()

	globals, err := cl.Discover()
	if err != nil {
		return fmt.Errorf("discover globals: %w", err)
	}
	fmt.Printf("Connected to %s\n", path)
	fmt.Println("Globals")
	for _, g := range globals {
		fmt.Printf("  [%d] %s v%d\n", g.Name, g.Interface, g.Version)
	}
	if listOnly {
		return nil
	}

	seen := 0
	watch := func(obj *client.Object) {
		obj.SetHandler(func(o *client.Object, opcode uint16, args []protocol.Value) {
			printEvent(o, opcode, args)
			seen++
		})
	}
	if err := setupObjects(cl, watch); err != nil {
		return err
	}
	// Round trip once so every bind and constructor above has been
	// dispatched; a rejected request surfaces here as a display error.
	if err := cl.Sync(); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	fmt.Println("Events")
	timedOut := make(chan struct{})
	if timeout > 0 {
		// Closing the transport is the only way to unblock a pump
		// waiting on a quiet server.
		timer := time.AfterFunc(timeout, func() {
			close(timedOut)
			_ = cl.Close()
		})
		defer timer.Stop()
	}
	for count == 0 || seen < count {
		if err := cl.Next(); err != nil {
			select {
			case <-timedOut:
				fmt.Printf("Stopped after %s, %d events\n", timeout, seen)
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				fmt.Printf("Server closed the connection, %d events\n", seen)
				return nil
			}
			return err
		}
	}
	fmt.Printf("Captured %d events\n", seen)
	return nil
}

// setupObjects binds whatever extension globals the server advertises
// and builds the probe's object tree: a surface with a blending facet,
// and a touch with a stylus facet. Missing globals skip their branch so
// the probe works against servers with any subset of extensions.
func setupObjects(cl *client.Conn, watch func(*client.Object)) error {
	fmt.Println("Objects")
	comp, err := bindOptional(cl, schema.CompositorName)
	if err != nil {
		return err
	}
	seat, err := bindOptional(cl, schema.SeatName)
	if err != nil {
		return err
	}
	if seat != nil {
		watch(seat)
	}
	sty, err := bindOptional(cl, schema.StylusName)
	if err != nil {
		return err
	}
	alpha, err := bindOptional(cl, schema.AlphaCompositingName)
	if err != nil {
		return err
	}

	var surface, touch *client.Object
	if comp != nil {
		surface, err = comp.RequestNew(schema.CompositorCreateSurfaceOp)
		if err != nil {
			return fmt.Errorf("create surface: %w", err)
		}
		announce(surface)
	}
	if seat != nil {
		touch, err = seat.RequestNew(schema.SeatGetTouchOp)
		if err != nil {
			return fmt.Errorf("get touch: %w", err)
		}
		watch(touch)
		announce(touch)
	}
	if sty != nil && touch != nil {
		facet, err := sty.RequestNew(schema.StylusGetTouchStylusOp, protocol.ObjectValue(touch.ID()))
		if err != nil {
			return fmt.Errorf("get touch stylus: %w", err)
		}
		watch(facet)
		announce(facet)
	}
	if alpha != nil && surface != nil {
		facet, err := alpha.RequestNew(schema.AlphaCompositingGetBlendingOp, protocol.ObjectValue(surface.ID()))
		if err != nil {
			return fmt.Errorf("get blending: %w", err)
		}
		announce(facet)
	}
	return nil
}

// bindOptional binds the named global at the highest common version, or
// reports it missing without failing the probe.
func bindOptional(cl *client.Conn, iface string) (*client.Object, error) {
	obj, err := cl.BindInterface(iface, 0)
	if errors.Is(err, client.ErrUnknownGlobal) {
		fmt.Printf("  %-26s (not advertised)\n", iface)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", iface, err)
	}
	announce(obj)
	return obj, nil
}

func announce(obj *client.Object) {
	fmt.Printf("  %-26s @%d v%d\n", obj.Interface().Name, obj.ID(), obj.Version())
}

func printEvent(obj *client.Object, opcode uint16, args []protocol.Value) {
	name := "opcode " + strconv.Itoa(int(opcode))
	if msg, ok := obj.Interface().Event(opcode); ok {
		name = msg.Name
	}
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = formatValue(v)
	}
	fmt.Printf("  %s@%d.%s(%s)\n", obj.Interface().Name, obj.ID(), name, strings.Join(parts, ", "))
}

// formatValue renders one decoded argument in the wire signature's terms.
func formatValue(v protocol.Value) string {
	switch v.Type {
	case protocol.ArgInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case protocol.ArgUint:
		return strconv.FormatUint(uint64(v.Uint), 10)
	case protocol.ArgFixed:
		return strconv.FormatFloat(v.Fixed.Float(), 'f', 2, 64)
	case protocol.ArgString:
		if v.Null {
			return "nil"
		}
		return strconv.Quote(v.String)
	case protocol.ArgObject:
		if v.Object == 0 {
			return "nil"
		}
		return "@" + strconv.FormatUint(uint64(v.Object), 10)
	case protocol.ArgNewID:
		return "new@" + strconv.FormatUint(uint64(v.NewID), 10)
	case protocol.ArgArray:
		return fmt.Sprintf("array[%d]", len(v.Array))
	case protocol.ArgFD:
		return "fd"
	}
	return "?"
}
