package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordClientConnect()
	RecordRequest("wl_compositor", "create_surface", 3*time.Millisecond)
	RecordEvent("zcr_touch_stylus_v2", "tool")
	RecordBind("zcr_stylus_v2")
	RecordProtocolError("wl_display", 0)
	RecordClientDisconnect()
}

type staticSource struct{}

func (staticSource) Interfaces() []InterfaceInfo {
	return []InterfaceInfo{{Name: "wl_compositor", Version: 1, Requests: []string{"create_surface"}}}
}

func (staticSource) Globals() []GlobalInfo {
	return []GlobalInfo{{Name: 1, Interface: "wl_compositor", Version: 1}}
}

func (staticSource) Clients() []ClientInfo {
	return []ClientInfo{{ID: "c-1", Resources: 2, ConnectedAt: time.Now()}}
}

func TestDebugRoutes(t *testing.T) {
	srv := NewDebugServer("127.0.0.1:0", zerolog.Nop(), nil, staticSource{})
	for _, path := range []string{"/health", "/metrics", "/interfaces", "/globals", "/clients"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
