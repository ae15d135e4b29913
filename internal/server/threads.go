package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/filtering"
	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/logger"
)

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) createThread(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"threadId": uuid.NewString()})
}

func (s *Server) getThread(c *gin.Context) {
	state, err := s.deps.Conversations.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "failed to load thread", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, err := s.deps.Conversations.HandleMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		s.fail(c, "failed to process message", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type feedResponse struct {
	Jobs    []jobs.Job               `json:"jobs"`
	Ratings map[string][]jobs.Rating `json:"ratings,omitempty"`
	Steps   []filtering.Status       `json:"steps"`
}

// threadJobs returns the jobs that survive the thread's knowledge. The
// suitability step runs only when ?ai=true is passed and AI filtering is
// configured.
func (s *Server) threadJobs(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := s.deps.Conversations.State(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, "failed to load thread", err)
		return
	}

	var f jobs.Filters
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	all, err := s.deps.Jobs.List(ctx, f)
	if err != nil {
		s.fail(c, "failed to list jobs", err)
		return
	}

	aiCfg := s.opts.AI
	aiCfg.Enabled = aiCfg.Enabled && c.Query("ai") == "true"
	cfg := &filtering.Config{
		Knowledge:   state.Knowledge,
		ExcludeFile: s.opts.ExcludeFile,
		AI:          &aiCfg,
	}

	steps := filtering.Default()
	s.excludeMu.Lock()
	res, err := filtering.Run(ctx, cfg, filtering.Deps{Logger: s.logger, Scorer: s.deps.Suitability}, steps, all)
	s.excludeMu.Unlock()
	if err != nil {
		s.fail(c, "failed to filter jobs", err)
		return
	}

	logger.WithThread(s.logger, c.Param("id")).Debug("feed filtered", zap.Int("jobs", len(res.Jobs)))
	c.JSON(http.StatusOK, feedResponse{Jobs: res.Jobs, Ratings: res.Ratings, Steps: filtering.Describe(steps)})
}
