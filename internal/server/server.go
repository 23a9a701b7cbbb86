// Package server provides the read-only HTTP data API over the merged
// master dataset.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/nexgen-logistics/shipmerge/internal/dataset"
)

const (
	defaultPort       = 8501
	reloadDebounce    = 200 * time.Millisecond
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server serves a merged dataset over HTTP.
type Server struct {
	path     string
	port     int
	watch    bool
	logger   *slog.Logger
	notifier *Notifier
	data     atomic.Pointer[dataset.Dataset]
}

// Config holds configuration for the data API server.
type Config struct {
	// DatasetPath is the merged CSV to serve.
	DatasetPath string
	Port        int
	// Watch reloads the dataset when the file is replaced.
	Watch  bool
	Logger *slog.Logger
}

// NewServer loads the dataset and creates a server for it.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	s := &Server{
		path:     cfg.DatasetPath,
		port:     cfg.Port,
		watch:    cfg.Watch,
		logger:   cfg.Logger,
		notifier: NewNotifier(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dataset returns the dataset currently being served.
func (s *Server) Dataset() *dataset.Dataset {
	return s.data.Load()
}

// Notifier returns the server's reload notifier.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Reload reads the merged file again and swaps it in. On failure the
// previous dataset stays in place.
func (s *Server) Reload() error {
	ds, err := dataset.Load(s.path)
	if err != nil {
		return err
	}
	s.data.Store(ds)
	s.logger.Info("dataset loaded", slog.String("path", s.path), slog.Int("rows", ds.Len()))
	s.notifier.Broadcast()
	return nil
}

// Handler returns the HTTP handler for the data API.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		middleware.Recoverer,
		middleware.Compress(5),
	)
	SetupRoutes(r, NewHandlers(s.Dataset, s.notifier))
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting data API", slog.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchFile(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down data API")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchFile reloads the dataset when the merged file is written or
// renamed into place. The directory is watched because the merger
// replaces the file rather than rewriting it.
func (s *Server) watchFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir, base := filepath.Dir(s.path), filepath.Base(s.path)
	if err := watcher.Add(dir); err != nil {
		s.logger.Error("failed to watch dataset directory", slog.String("dir", dir), slog.String("error", err.Error()))
		<-ctx.Done()
		return nil
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.logger.Debug("dataset changed, reloading", slog.String("file", event.Name))
				if err := s.Reload(); err != nil {
					s.logger.Error("reload failed", slog.String("error", err.Error()))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
