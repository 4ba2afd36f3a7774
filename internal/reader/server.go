// Package reader serves built translations over HTTP. Each WebSocket
// connection on /read is a reading session driving its own chapter stream
// loader against a shared library.
package reader

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/library"
	"github.com/FocuswithJustin/versestream/internal/logging"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxMessageSize = 4096
	DefaultMessageRate    = 10
	DefaultMessageBurst   = 20
	DefaultSearchLimit    = 20
	MaxSearchLimit        = 100
)

// Config configures a reader server.
type Config struct {
	Library *library.Library

	// Lookup resolves book names in jump references. Nil uses the built-in names.
	Lookup *canon.Lookup

	// AllowedOrigins restricts CORS and WebSocket origins. Empty allows all.
	AllowedOrigins []string

	// MaxMessageSize bounds a client command in bytes.
	MaxMessageSize int64

	// MessageRate and MessageBurst bound commands per session per second.
	MessageRate  float64
	MessageBurst int

	// Window settings handed to each session's loader.
	PreloadCount      int
	MaxLoadedChapters int

	// DefaultTranslation is used by init commands that name none.
	DefaultTranslation string

	Metrics *Metrics
}

func (c *Config) applyDefaults() error {
	if c.Lookup == nil {
		lookup, err := canon.NewLookup()
		if err != nil {
			return errors.Wrap(err, "book name lookup")
		}
		c.Lookup = lookup
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MessageRate <= 0 {
		c.MessageRate = DefaultMessageRate
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = DefaultMessageBurst
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	return nil
}

// Server is the reader HTTP server.
type Server struct {
	cfg      Config
	lib      *library.Library
	metrics  *Metrics
	hub      *Hub
	router   chi.Router
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server and starts its session hub. Call Close to end every
// open session.
func New(cfg Config) (*Server, error) {
	if cfg.Library == nil {
		return nil, errors.NewValidation("library", "a library is required")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		lib:     cfg.Library,
		metrics: cfg.Metrics,
		hub:     newHub(cfg.Metrics),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.router = s.routes()
	go s.hub.run(ctx)
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(logging.CombinedMiddleware)
	r.Use(securityHeaders)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	r.Use(s.metrics.Instrument)

	r.Get("/healthz", s.handleHealth)
	r.Get("/translations", s.handleTranslations)
	r.Get("/translations/{code}/books", s.handleBooks)
	r.Get("/search", s.handleSearch)
	r.Get("/read", s.handleRead)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Sessions returns the number of open reading sessions.
func (s *Server) Sessions() int { return s.hub.Count() }

// Close ends every reading session. It does not close the library.
func (s *Server) Close() {
	s.cancel()
	<-s.hub.done
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.ServerStartup("reader", ln.Addr().String(), "library", s.lib.Dir())

	select {
	case err := <-errCh:
		s.Close()
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("server_shutdown", "addr", ln.Addr().String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
