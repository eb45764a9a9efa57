package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadMB    int
	RequestTimeout time.Duration
}

// HTTPServer wraps the HTTP server instance and its handlers.
type HTTPServer struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter builds and wires all routes.
func NewRouter(h *Handler, cfg HTTPConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/providers", h.ListProviders)

		api.Route("/health-data", func(hd chi.Router) {
			hd.Post("/", h.SubmitHealthData)
			hd.Get("/", h.ListHealthData)
			hd.Get("/export", h.ExportHealthData)
			hd.Get("/{id}", h.GetHealthData)
		})
	})

	return r
}

func NewHTTPServer(cfg HTTPConfig, h *Handler, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(h, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Serve runs the HTTP server on lis until Shutdown.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.logger.Info("http.listen", "addr", lis.Addr().String())
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("http.shutdown")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http.request",
				"req_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
