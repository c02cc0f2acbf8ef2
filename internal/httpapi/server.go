// Package httpapi exposes the local control API used by the admin panel:
// read and edit the settings, list, upload and delete carousel images, and
// trigger a sync. It binds to loopback by default and has no authentication
// of its own.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/state"
	"github.com/njoerd114/mosquesync/internal/sync"
)

const (
	// maxUploadBytes bounds a single image upload.
	maxUploadBytes = 10 << 20

	shutdownTimeout = 5 * time.Second
)

// Engine is the part of [sync.Engine] the API drives.
type Engine interface {
	SaveSettings(ctx context.Context, s *model.Settings) error
	UploadImage(ctx context.Context, req sync.UploadRequest) (*model.Image, error)
	DeleteImage(ctx context.Context, req sync.DeleteRequest) ([]model.Image, error)
	ForceSyncNow()
	Running() bool
}

// Store is the read side of the local mirror.
type Store interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	ListImages(ctx context.Context) ([]model.LocalImage, error)
	SyncStatuses(ctx context.Context) ([]state.SyncStatus, error)
}

// Server serves the control API. Create one with [New].
type Server struct {
	engine Engine
	store  Store
	router *gin.Engine
	log    *slog.Logger
}

// New builds the router. The returned Server is ready to be served with
// [Server.ListenAndServe] or mounted through [Server.Handler].
func New(engine Engine, store Store, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: engine,
		store:  store,
		router: gin.New(),
		log:    logger,
	}
	s.router.MaxMultipartMemory = maxUploadBytes
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/settings", s.handleGetSettings)
	s.router.PUT("/settings", s.handlePutSettings)
	s.router.GET("/images", s.handleListImages)
	s.router.POST("/images", s.handleUploadImage)
	s.router.DELETE("/images/:id", s.handleDeleteImage)
	s.router.POST("/sync", s.handleSync)
	return s
}

// Handler returns the router as an [http.Handler].
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving control API on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control API: %w", err)
	}
	return nil
}

// requestLogger logs one debug line per request, and a warning for 5xx.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.log.Warn("control API request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		s.log.Debug("control API request", attrs...)
	}
}
