// Package api exposes the generator over HTTP and a websocket feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/monitor"
	"github.com/gin-gonic/gin"
)

// Server is the HTTP control API
type Server struct {
	gen     *engine.Generator
	presets control.Presets
	monitor *monitor.LevelMonitor

	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	feedInterval time.Duration
}

// NewServer creates the API for gen listening on addr. presets and mon
// may be nil; the routes that need them answer 503.
func NewServer(gen *engine.Generator, presets control.Presets, mon *monitor.LevelMonitor, addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		gen:          gen,
		presets:      presets,
		monitor:      mon,
		ctx:          ctx,
		cancel:       cancel,
		feedInterval: 100 * time.Millisecond,
	}
	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRouter initializes the routes
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleGetStatus)
		api.GET("/params", s.handleGetParams)
		api.GET("/params/:key", s.handleGetParam)
		api.PUT("/params/:key", s.handleSetParam)
		api.POST("/rebuild", s.handleRebuild)
		api.GET("/monitor", s.handleGetMonitor)
		api.GET("/history", s.handleGetHistory)
		api.GET("/presets", s.handleListPresets)
		api.POST("/presets", s.handleSavePreset)
		api.POST("/presets/:name/apply", s.handleApplyPreset)
		api.DELETE("/presets/:name", s.handleDeletePreset)
		api.GET("/ws", s.handleWebSocket)
	}

	s.router = router
}

// requestLogger logs each request through the component logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debugf("api", "%s %s %d %s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start binds the address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logging.Infof("api", "Starting HTTP API on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("api", "HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down and ends websocket feeds
func (s *Server) Stop() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	s.wg.Wait()
	return err
}
