package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spigell/agency-onboarder/internal/jobs"
)

type jobsQuery struct {
	jobs.Filters
	Offset int `form:"offset"`
	Page   int `form:"page"`
}

type jobsResponse struct {
	Jobs          []jobs.Job          `json:"jobs"`
	Total         int                 `json:"total"`
	Offset        int                 `json:"offset"`
	PageSize      int                 `json:"pageSize"`
	FilterOptions map[string][]string `json:"filterOptions"`
}

// listJobs returns one page of the feed. page is 1-based and wins over offset.
func (s *Server) listJobs(c *gin.Context) {
	ctx := c.Request.Context()

	var q jobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offset := q.Offset
	if q.Page > 0 {
		offset = (q.Page - 1) * jobs.PageSize
	}
	if offset < 0 {
		offset = 0
	}

	page, err := s.deps.Jobs.Search(ctx, q.Filters, offset)
	if err != nil {
		s.fail(c, "failed to list jobs", err)
		return
	}
	total, err := s.deps.Jobs.Count(ctx, q.Filters)
	if err != nil {
		s.fail(c, "failed to count jobs", err)
		return
	}
	options, err := s.deps.Jobs.FilterOptions(ctx)
	if err != nil {
		s.fail(c, "failed to load filter options", err)
		return
	}

	c.JSON(http.StatusOK, jobsResponse{
		Jobs:          page,
		Total:         total,
		Offset:        offset,
		PageSize:      jobs.PageSize,
		FilterOptions: options,
	})
}

func (s *Server) filterOptions(c *gin.Context) {
	options, err := s.deps.Jobs.FilterOptions(c.Request.Context())
	if err != nil {
		s.fail(c, "failed to load filter options", err)
		return
	}
	c.JSON(http.StatusOK, options)
}

type excludeRequest struct {
	Reason string `json:"reason"`
}

// excludeJob hides a job from every later feed.
func (s *Server) excludeJob(c *gin.Context) {
	if s.opts.ExcludeFile == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no exclude file configured"})
		return
	}

	var req excludeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	job, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "failed to load job", err)
		return
	}

	s.excludeMu.Lock()
	defer s.excludeMu.Unlock()

	list, err := jobs.LoadExcludeList(s.opts.ExcludeFile)
	if err != nil {
		s.fail(c, "failed to read exclude file", err)
		return
	}
	list.Exclude(jobs.ExcludeActorUser, strings.TrimSpace(req.Reason), *job)
	if err := list.Save(s.opts.ExcludeFile); err != nil {
		s.fail(c, "failed to write exclude file", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "excluded", "id": job.ID})
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Models.Names())
}

// jobRequest is a job posted for analysis. Models defaults to every
// configured model and Prompt to the built-in company description. With a
// thread id the thread's knowledge joins the prompt.
type jobRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Models      []string `json:"models"`
	Prompt      string   `json:"prompt"`
	ThreadID    string   `json:"threadId"`
}

func (s *Server) bindJob(c *gin.Context) (jobs.Job, []string, jobs.Brief, bool) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return jobs.Job{}, nil, jobs.Brief{}, false
	}

	brief := jobs.Brief{Prompt: req.Prompt}
	if req.ThreadID != "" {
		state, err := s.deps.Conversations.State(c.Request.Context(), req.ThreadID)
		if err != nil {
			s.fail(c, "failed to load thread", err)
			return jobs.Job{}, nil, jobs.Brief{}, false
		}
		k := state.Knowledge
		brief.Knowledge = &k
	}

	job := jobs.Job{Title: req.Title, Description: req.Description}
	return job, req.Models, brief, true
}

func (s *Server) analyze(c *gin.Context) {
	job, models, brief, ok := s.bindJob(c)
	if !ok {
		return
	}
	ratings, err := s.deps.Suitability.Score(c.Request.Context(), job, models, brief)
	if err != nil {
		s.fail(c, "failed to analyze job", err)
		return
	}
	c.JSON(http.StatusOK, ratings)
}

func (s *Server) proposal(c *gin.Context) {
	job, models, brief, ok := s.bindJob(c)
	if !ok {
		return
	}
	proposals, err := s.deps.Suitability.Propose(c.Request.Context(), job, models, brief)
	if err != nil {
		s.fail(c, "failed to generate proposal", err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}
