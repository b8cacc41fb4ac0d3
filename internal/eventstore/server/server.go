// Package server exposes the event storage engine over a minimal HTTP
// surface: gin wiring, graceful shutdown, and JSON request parsing.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/eventstore/internal/eventstore"
)

// Server wraps a gin.Engine wired to one eventstore.Engine.
type Server struct {
	Engine *gin.Engine
	Addr   string

	db    *sql.DB
	store *eventstore.Engine
}

// New builds a Server listening at addr, in "debug" or "release" gin mode.
func New(addr string, db *sql.DB, store *eventstore.Engine, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	s := &Server{Engine: r, Addr: addr, db: db, store: store}

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/v1")
	v1.POST("/events", s.appendEventsHandler)
	v1.GET("/aggregates/:id", s.readAggregateHandler)
	v1.GET("/stream", s.readTrackedHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("[Server] Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Engine}

	slog.Info("[Server] Starting HTTP server", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[Server] Stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] HTTP server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
