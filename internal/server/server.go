package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"scrubview/internal/api"
	"scrubview/internal/config"
	"scrubview/internal/surface"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
}

// New wires the API onto a chi router. store may be nil when persistence is
// disabled.
func New(cfg *config.Config, logger zerolog.Logger, s *surface.Surface, store api.PlaybackStore, engineName string) *Server {
	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: api.NewHandler(s, store, logger, cfg.Library.Path, engineName, cfg.Progress.EventInterval),
	}

	srv.router = chi.NewRouter()
	srv.setupMiddleware()
	srv.setupRoutes()

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Route("/player", func(r chi.Router) {
			r.Post("/load", s.handler.LoadSource)
			r.Post("/play", s.handler.Play)
			r.Post("/pause", s.handler.Pause)
			r.Post("/toggle", s.handler.TogglePlay)
			r.Post("/seek", s.handler.Seek)
			r.Post("/volume", s.handler.SetVolume)
			r.Post("/mute", s.handler.SetMuted)
			r.Post("/rate", s.handler.SetRate)
			r.Get("/state", s.handler.GetState)
			r.Get("/stream", s.handler.StreamSource)
		})

		r.Route("/seekbar", func(r chi.Router) {
			r.Post("/hover", s.handler.Hover)
			r.Post("/leave", s.handler.Leave)
			r.Get("/preview", s.handler.GetPreview)
		})

		r.Get("/events", s.handler.Events)

		// Playback progress
		r.Get("/playback/position", s.handler.GetPlaybackPosition)
		r.Delete("/playback/position", s.handler.DeletePlaybackPosition)
		r.Get("/playback/continue", s.handler.GetContinueWatching)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
