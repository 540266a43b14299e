// Package api is the HTTP surface: the chat webhook, a small status API,
// and the Prometheus metrics endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/health"
	"github.com/bcnofne/shipos/pkg/inbox"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/notify"
	"github.com/bcnofne/shipos/pkg/store"
	"github.com/bcnofne/shipos/pkg/version"
)

// GoalReader is the slice of the planner the status API needs.
type GoalReader interface {
	CurrentGoal() string
	UpdateGoal(text, source string)
}

// Server represents the HTTP server and its wired subsystems.
type Server struct {
	cfg      *config.Config
	st       *store.Store
	in       *inbox.Inbox
	mgr      *modes.Manager
	guard    *cost.Guard
	monitor  *health.Monitor
	notifier *notify.Service
	goals    GoalReader
	line     *notify.LINEClient
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer wires the HTTP server. line may be nil when the chat channel
// is not configured; the webhook then accepts but cannot reply.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	in *inbox.Inbox,
	mgr *modes.Manager,
	guard *cost.Guard,
	monitor *health.Monitor,
	notifier *notify.Service,
	goals GoalReader,
	line *notify.LINEClient,
) *Server {
	return &Server{
		cfg:      cfg,
		st:       st,
		in:       in,
		mgr:      mgr,
		guard:    guard,
		monitor:  monitor,
		notifier: notifier,
		goals:    goals,
		line:     line,
		logger:   slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.POST("/webhook", s.Webhook)
	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.GetStatus)
		v1.GET("/goal", s.GetGoal)
		v1.POST("/goal", s.PostGoal)
		v1.GET("/mode", s.GetMode)
		v1.POST("/mode", s.PostMode)
		v1.POST("/events", s.PostEvent)
	}
	return r
}

// requestLog logs each request at Debug; the webhook is chatty.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// Start begins serving on the configured port.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              ":" + s.cfg.HTTP.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop shuts the server down within the grace window.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", "error", err)
	}
}

// Healthz reports process liveness plus the data-root write probe.
func (s *Server) Healthz(c *gin.Context) {
	if err := s.st.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.Full(),
	})
}
