// Package rest is the master's network surface: a fiber app serving health
// and run status over HTTP and the worker protocol over websocket.
package rest

import (
	"fmt"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/master"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// WorkerWSPath is the route workers dial.
const WorkerWSPath = "/api/v1/workers/ws"

// StatusSource reports the state of the current run.
type StatusSource interface {
	Status() *master.Status
}

// Config holds the configuration for the server.
type Config struct {
	// Address is the address to listen on (e.g., ":8090").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WorkersResponse is the body of the workers endpoint. Connected counts open
// worker connections and is zero when the server has no hub.
type WorkersResponse struct {
	Active    int                    `json:"active"`
	Connected int                    `json:"connected"`
	Workers   []types.WorkerSnapshot `json:"workers"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Phase  string `json:"phase,omitempty"`
}

// Server represents the master's HTTP server.
type Server struct {
	app    *fiber.App
	hub    *WorkerHub
	status StatusSource
	config *Config
	log    *zap.Logger
}

// NewServer creates a server that accepts workers through hub and reports
// status from src.
func NewServer(hub *WorkerHub, src StatusSource, config *Config, log *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "mandel master",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	s := &Server{
		app:    app,
		hub:    hub,
		status: src,
		config: config,
		log:    log,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))
	s.app.Use(requestid.New())
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)))
		return err
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/status", s.getStatus)
	api.Get("/workers", s.listWorkers)

	if s.hub != nil {
		s.hub.route(s.app)
	}
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok"}
	if s.status != nil {
		if st := s.status.Status(); st != nil {
			resp.RunID = st.RunID
			resp.Phase = string(st.Phase)
		}
	}
	return c.JSON(resp)
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	st := s.currentStatus()
	if st == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no run in progress")
	}
	return c.JSON(st)
}

func (s *Server) listWorkers(c *fiber.Ctx) error {
	st := s.currentStatus()
	if st == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no run in progress")
	}
	resp := WorkersResponse{Active: st.ActiveWorkers, Workers: st.Workers}
	if s.hub != nil {
		resp.Connected = s.hub.Connected()
	}
	return c.JSON(resp)
}

func (s *Server) currentStatus() *master.Status {
	if s.status == nil {
		return nil
	}
	return s.status.Status()
}

// Start listens on the configured address.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
