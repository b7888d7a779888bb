// Package server exposes an annotation session over HTTP for a browser
// front end.
package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/internal/logger"
	"github.com/medveriground/bbox-annotator/internal/metrics"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/session"
	"github.com/medveriground/bbox-annotator/pkg/store"
)

// Deps are the collaborators of a Server. Persister defaults to Local, and
// Local to a store in the configured output directory.
type Deps struct {
	Config    *config.Config
	Logger    logger.ILogger
	Metrics   *metrics.Metrics
	Local     *store.LocalStore
	Persister store.Persister
	// Clock is handed to every session; nil uses time.Now
	Clock func() time.Time
}

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	log     logger.ILogger
	metrics *metrics.Metrics

	local     *store.LocalStore
	persister store.Persister
	clock     func() time.Time

	// mu guards the hosted session; one request mutates it at a time
	mu        sync.Mutex
	sess      *session.Session
	sessionID string
	images    *imagery.Loader
}

// New builds the fiber app and registers every route
func New(d Deps) *Server {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Local == nil {
		d.Local = store.NewLocalStore(d.Config.Session.OutputDir)
	}
	if d.Persister == nil {
		d.Persister = d.Local
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	s := &Server{
		cfg:       d.Config,
		log:       d.Logger,
		metrics:   d.Metrics,
		local:     d.Local,
		persister: d.Persister,
		clock:     d.Clock,
	}
	s.sess = s.newSession()

	s.app = fiber.New(fiber.Config{
		AppName:               "bbox-annotator",
		BodyLimit:             1 * 1024 * 1024, // 1MB
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	if len(d.Config.Server.CORSOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(d.Config.Server.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(success("ok", fiber.Map{"persist_mode": s.persister.Mode()}))
	})
	if s.cfg.Server.Metrics {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")
	api.Get("/reasons", s.Reasons)
	newSessionController(s).RegisterRoutes(api)
}

func (s *Server) newSession() *session.Session {
	return session.New(
		session.WithClock(s.clock),
		session.WithLocalStore(s.local),
		session.WithPersister(s.persister),
	)
}

// GetApp returns the fiber app, mainly for tests
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// Run listens on the configured address until Shutdown
func (s *Server) Run() error {
	addr := s.cfg.Server.Addr()
	s.log.Info("server", "listening", map[string]interface{}{
		"addr":         addr,
		"persist_mode": s.persister.Mode(),
	})
	return s.app.Listen(addr)
}

// Shutdown stops the listener, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
