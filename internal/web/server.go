// Package web is the hub's HTTP boundary: the JSON API the dashboard talks
// to, the dashboard page itself, a websocket status stream, and the
// prometheus scrape endpoint.
package web

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bonsaihub/controller/internal/engine"
	"github.com/bonsaihub/controller/internal/homeassistant"
	"github.com/bonsaihub/controller/internal/pihole"
	"github.com/bonsaihub/controller/internal/update"
)

//go:embed static/index.html
var dashboardHTML []byte

// Deps carries the server's collaborators. HA, Pihole and Updater may be
// nil; their routes then answer 503.
type Deps struct {
	Engine  *engine.Engine
	HA      *homeassistant.Client
	Pihole  *pihole.Client
	Updater *update.Manager

	// Restart relaunches the hub process. Nil disables the restart route.
	Restart func()
}

// Server bundles the router and its dependencies.
type Server struct {
	addr    string
	deps    Deps
	router  *gin.Engine
	started time.Time
}

// New constructs the server with all routes registered.
func New(addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		deps:    deps,
		router:  router,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", dashboardHTML)
	})
	s.router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(s.deps.Engine.Metrics().Registry(), promhttp.HandlerOpts{})))

	api := s.router.Group("/api")

	bonsai := api.Group("/bonsai")
	bonsai.GET("/status", s.handleStatus)
	bonsai.POST("/config", s.handleUpdateConfig)
	bonsai.POST("/auto_mode", s.handleAutoMode)
	bonsai.POST("/manual_toggle", s.handleManualToggle)
	bonsai.POST("/oled", s.handleOLED)
	bonsai.GET("/readings", s.handleReadings)
	bonsai.GET("/waterings", s.handleWaterings)

	ha := api.Group("/ha")
	ha.GET("/status", s.handleHAStatus)
	ha.POST("/config", s.handleHAConfig)
	ha.POST("/switch", s.handleHASwitch)
	ha.POST("/light", s.handleHALight)

	ph := api.Group("/pihole")
	ph.GET("/status", s.handlePiholeStatus)
	ph.POST("/config", s.handlePiholeConfig)
	ph.POST("/blocking", s.handlePiholeBlocking)

	hub := api.Group("/hub")
	hub.GET("/health", s.handleHealth)
	hub.POST("/restart", s.handleRestart)
	hub.GET("/update_config", s.handleUpdateConfigGet)
	hub.POST("/update_config", s.handleUpdateConfigSet)
	hub.POST("/update", s.handleHubUpdate)

	api.GET("/status/stream", s.handleStatusStream)
}
