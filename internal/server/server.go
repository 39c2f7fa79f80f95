package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/openfleet/location-relay/internal/config"
	"github.com/openfleet/location-relay/internal/metrics"
	"github.com/openfleet/location-relay/internal/room"
	"github.com/openfleet/location-relay/internal/store"
)

// Options wires the server's collaborators.
type Options struct {
	Config         config.ServerConfig
	Secret         []byte                // HMAC secret shared with the issuer
	SendBuffer     int                   // per-connection outbound frame queue
	Registry       *room.Registry        // required
	Cache          store.LastSampleStore // optional /live fallback for cold rooms
	Metrics        *metrics.Metrics      // optional
	MetricsHandler http.Handler          // optional, mounted when non-nil
	MetricsPath    string
	Logger         *slog.Logger
}

// Server is the HTTP edge: health, plain reads, and websocket upgrades.
type Server struct {
	opts       Options
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates the server and its route table.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = config.DefaultSendBuffer
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), opts.Config.AllowedOrigins)
		},
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Config.Port),
		Handler: s.buildRouter(),
		// No global read/write timeouts: they would sever long-lived
		// websocket connections. Non-upgrade handlers are quick.
	}

	return s
}

// Handler returns the route table, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in the background. The returned channel yields the
// terminal serve error, if any.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

// Stop gracefully drains the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/live/entity/{id}", s.handleLiveRead)
	r.Get("/ws/entity/{id}", s.handleUpgrade)
	r.Get("/stats", s.handleStats)

	if s.opts.MetricsHandler != nil {
		r.Handle(s.opts.MetricsPath, s.opts.MetricsHandler)
	}

	return r
}

// originAllowed checks the websocket Origin header against the CORS
// allow-list. Non-browser clients send no Origin and are allowed.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
