// Package server exposes onboarding threads, the job feed and suitability
// analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/conversation"
	"github.com/spigell/agency-onboarder/internal/filtering"
	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/onboarding"
)

const shutdownTimeout = 5 * time.Second

// Conversations runs onboarding turns. *onboarding.Orchestrator implements it.
type Conversations interface {
	HandleMessage(ctx context.Context, threadID, text string) (*onboarding.Reply, error)
	State(ctx context.Context, threadID string) (*conversation.State, error)
}

// JobStore is the part of the job store the feed needs. *jobs.SQLiteStore implements it.
type JobStore interface {
	jobs.Store
	List(ctx context.Context, f jobs.Filters) ([]jobs.Job, error)
	Count(ctx context.Context, f jobs.Filters) (int, error)
}

// Suitability rates jobs and drafts proposals. *jobs.Scorer implements it.
type Suitability interface {
	Score(ctx context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Rating, error)
	Propose(ctx context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Proposal, error)
}

// ModelLister names the models a request may pick from.
type ModelLister interface {
	Names() []string
}

type Deps struct {
	Conversations Conversations
	Jobs          JobStore
	Suitability   Suitability
	Models        ModelLister
	Logger        *zap.Logger
}

type Options struct {
	AllowedOrigin string
	ExcludeFile   string
	// AI configures the suitability step of the per-thread feed.
	AI    filtering.AIConfig
	Debug bool
}

type Server struct {
	deps   Deps
	opts   Options
	logger  *zap.Logger
	handler http.Handler

	// excludeMu guards the exclude file.
	excludeMu sync.Mutex
}

func New(deps Deps, opts Options) (*Server, error) {
	if deps.Conversations == nil {
		return nil, errors.New("conversations are required")
	}
	if deps.Jobs == nil {
		return nil, errors.New("job store is required")
	}
	if deps.Suitability == nil || deps.Models == nil {
		return nil, errors.New("suitability scorer and models are required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{deps: deps, opts: opts, logger: log}
	s.handler = withCORS(opts.AllowedOrigin, s.routes())
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/threads", s.createThread)
		api.GET("/threads/:id", s.getThread)
		api.POST("/threads/:id/messages", s.postMessage)
		api.GET("/threads/:id/jobs", s.threadJobs)

		api.GET("/jobs", s.listJobs)
		api.GET("/jobs/filters", s.filterOptions)
		api.POST("/jobs/:id/exclude", s.excludeJob)

		api.GET("/models", s.listModels)
		api.POST("/analyze", s.analyze)
		api.POST("/proposal", s.proposal)
	}

	return router
}

// fail writes err as a JSON error. Provider failures are reported as
// retryable, unknown models as bad requests.
func (s *Server) fail(c *gin.Context, msg string, err error) {
	switch {
	case ai.IsProviderError(err):
		s.logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retry": true})
	case errors.Is(err, ai.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		s.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
