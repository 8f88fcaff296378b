package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// InterfaceInfo describes one protocol interface for the debug surface.
type InterfaceInfo struct {
	Name     string   `json:"name"`
	Version  uint32   `json:"version"`
	Requests []string `json:"requests"`
	Events   []string `json:"events"`
}

// GlobalInfo describes one advertised global.
type GlobalInfo struct {
	Name      uint32 `json:"name"`
	Interface string `json:"interface"`
	Version   uint32 `json:"version"`
}

// ClientInfo describes one connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	Resources   int       `json:"resources"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Source exposes read-only server state to the debug surface.
type Source interface {
	Interfaces() []InterfaceInfo
	Globals() []GlobalInfo
	Clients() []ClientInfo
}

// DebugServer is the HTTP introspection and metrics endpoint. It never
// carries protocol traffic.
type DebugServer struct {
	addr     string
	router   *gin.Engine
	appeared time.Time
}

// NewDebugServer builds the debug router over src.
func NewDebugServer(addr string, logger zerolog.Logger, corsOrigins []string, src Source) *DebugServer {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &DebugServer{
		addr:     addr,
		router:   r,
		appeared: time.Now(),
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": "waycore-debug",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/interfaces", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"interfaces": src.Interfaces()})
	})

	r.GET("/globals", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"globals": src.Globals()})
	})

	r.GET("/clients", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clients": src.Clients()})
	})

	return s
}

// Router returns the underlying engine so features can attach their
// own debug routes.
func (s *DebugServer) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *DebugServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
