// Package api is a development stand-in for the dashboard backend. It serves
// the same JSON contract from a SQLite store and simulates a worker that
// runs queued tasks, so the client can be demonstrated and tested end to end.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
	"github.com/sirupsen/logrus"
)

// Server is the development HTTP API server
type Server struct {
	store  *taskstore.Store
	cfg    config.DevServerConfig
	log    *logrus.Entry
	engine *gin.Engine
	sim    *Simulator

	mu        sync.Mutex
	ingestSeq uint64
	timers    []*time.Timer
}

// NewServer creates a new API server
func NewServer(store *taskstore.Store, cfg config.DevServerConfig, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  store,
		cfg:    cfg,
		log:    log,
		engine: gin.New(),
		sim:    NewSimulator(store, cfg.StepInterval.Duration, log),
	}
	// test names may carry escaped slashes
	s.engine.UseRawPath = true
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := s.engine.Group("/api")
	group.POST("/prs/clear", s.clearShortlistHandler)
	group.POST("/prs/add_github", s.ingestHandler)
	group.GET("/prs", s.shortlistHandler)
	group.POST("/queue/run-pr", s.submitHandler)
	group.GET("/queue/list", s.queueHandler)
	group.DELETE("/queue/delete/:taskID", s.deleteHandler)
	group.GET("/running", s.runningHandler)
	group.GET("/history", s.historyHandler)
	group.GET("/task/:taskID", s.taskHandler)
	group.GET("/download/:taskID", s.downloadAllHandler)
	group.GET("/download/single/:taskID/:failedTest", s.downloadSingleHandler)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Simulator returns the worker simulation
func (s *Server) Simulator() *Simulator {
	return s.sim
}

// Start serves on the configured address and runs the worker simulation
// until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	sched := scheduler.New(nil)
	if err := sched.Add("worker", s.sim.Interval(), func(context.Context) {
		if err := s.sim.Step(); err != nil {
			s.log.WithError(err).Error("worker step")
		}
	}); err != nil {
		return err
	}
	go sched.Run(ctx, 250*time.Millisecond)

	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down")
		s.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("could not close server")
		}
	}()

	s.log.Infof("serving on http://%s", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels pending ingestion timers
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"request_id": c.GetHeader("X-Request-ID"),
		}).Debug("http")
	}
}
