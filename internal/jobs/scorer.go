package jobs

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/logger"
	"github.com/spigell/agency-onboarder/internal/utils"
)

//go:embed prompts/company.md
var companyPrompt string

//go:embed prompts/proposal.md
var proposalPrompt string

const (
	defaultMaxLogLength = 200
	defaultConcurrency  = 4
)

// Band groups scores the way the feed colours them.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// BandOf returns the band a 0..100 score falls into.
func BandOf(score int) Band {
	switch {
	case score < 40:
		return BandLow
	case score < 70:
		return BandMedium
	default:
		return BandHigh
	}
}

// Rating is one model's verdict on a job. Error is set instead of a score
// when that model failed.
type Rating struct {
	Model  string `json:"model"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
	Band   Band   `json:"band"`
	Error  string `json:"error,omitempty"`
}

// Proposal is one model's draft reply to a job post.
type Proposal struct {
	Model    string `json:"model"`
	Proposal string `json:"proposal"`
	Error    string `json:"error,omitempty"`
}

// Brief describes the agency a job is judged for. An empty Prompt means the
// built-in company description; Knowledge, when set, is appended to it.
type Brief struct {
	Prompt    string
	Knowledge *knowledge.Record
}

// Models resolves model names. *ai.Registry implements it.
type Models interface {
	Get(name string) (ai.Generator, error)
	Names() []string
}

type ScorerOptions struct {
	Prompt       string
	Concurrency  int
	MaxLogLength int
}

// Scorer asks several models in parallel how well a job suits the agency.
type Scorer struct {
	models      Models
	prompt      string
	concurrency int
	maxLogLen   int
	logger      *zap.Logger
}

func NewScorer(models Models, opts ScorerOptions, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}
	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(companyPrompt)
	}
	return &Scorer{
		models:      models,
		prompt:      prompt,
		concurrency: opts.Concurrency,
		maxLogLen:   opts.MaxLogLength,
		logger:      log,
	}
}

// DefaultPrompt returns the company description used when a Brief has none.
func (s *Scorer) DefaultPrompt() string {
	return s.prompt
}

// Score rates job with every model in models, or with all known models when
// models is empty. Ratings come back in the order of models. A failing model
// yields a Rating with Error set; only unknown models and cancellation fail
// the whole call.
func (s *Scorer) Score(ctx context.Context, job Job, models []string, brief Brief) ([]Rating, error) {
	req := ai.Request{
		System:   s.system(brief),
		Messages: []ai.Message{{Role: ai.RoleUser, Content: job.Brief()}},
		Schema:   ratingSchema(),
	}

	ratings, err := fanOut(ctx, s, models, func(ctx context.Context, name string, gen ai.Generator) Rating {
		log := logger.WithJob(logger.WithModel(s.logger, "", gen.Model()), job.ID)
		log.Debug("suitability request",
			zap.String("model_name", name),
			zap.Int("prompt_length", utf8.RuneCountInString(req.System)),
			zap.String("prompt_preview", utils.TruncateForLog(req.System, s.maxLogLen)),
		)

		raw, err := gen.Generate(ctx, req)
		if err != nil {
			log.Warn("suitability request failed", zap.String("model_name", name), zap.Error(err))
			return Rating{Model: name, Error: err.Error()}
		}

		log.Debug("suitability response",
			zap.String("model_name", name),
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
		)

		rating, err := parseRating(raw)
		if err != nil {
			log.Warn("suitability response unusable", zap.String("model_name", name), zap.Error(err))
			return Rating{Model: name, Error: err.Error()}
		}
		rating.Model = name
		return rating
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// Propose drafts a proposal for job with every model in models.
func (s *Scorer) Propose(ctx context.Context, job Job, models []string, brief Brief) ([]Proposal, error) {
	req := ai.Request{
		System:   strings.TrimSpace(proposalPrompt) + "\n\n" + s.system(brief),
		Messages: []ai.Message{{Role: ai.RoleUser, Content: job.Brief()}},
	}

	return fanOut(ctx, s, models, func(ctx context.Context, name string, gen ai.Generator) Proposal {
		text, err := gen.Generate(ctx, req)
		if err != nil {
			s.logger.Warn("proposal request failed", zap.String("model_name", name), zap.String("job_id", job.ID), zap.Error(err))
			return Proposal{Model: name, Error: err.Error()}
		}
		return Proposal{Model: name, Proposal: strings.TrimSpace(text)}
	})
}

func (s *Scorer) system(brief Brief) string {
	prompt := strings.TrimSpace(brief.Prompt)
	if prompt == "" {
		prompt = s.prompt
	}
	if brief.Knowledge == nil {
		return prompt
	}
	return prompt + "\n\n# Agency Preferences\n\nThe agency described its job feed preferences during onboarding. " +
		"Null means unknown. Jobs that break a known preference should score lower.\n\n" + brief.Knowledge.String()
}

// fanOut runs call once per model with at most s.concurrency calls in flight.
func fanOut[T any](ctx context.Context, s *Scorer, names []string, call func(context.Context, string, ai.Generator) T) ([]T, error) {
	if len(names) == 0 {
		names = s.models.Names()
	}
	if len(names) == 0 {
		return nil, errors.New("no models configured")
	}

	generators := make([]ai.Generator, len(names))
	for i, name := range names {
		gen, err := s.models.Get(name)
		if err != nil {
			return nil, err
		}
		generators[i] = gen
	}

	results := make([]T, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = call(gctx, names[i], generators[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func ratingSchema() *ai.Schema {
	return ai.Object([]string{"suitability_score", "reason"}, map[string]*ai.Schema{
		"suitability_score": {Type: ai.TypeNumber, Description: "A score between 0 and 100 indicating the suitability of the job post for the company"},
		"reason":            {Type: ai.TypeString, Description: "A detailed explanation of the suitability score. Max 2 sentences."},
	}, "suitability_score", "reason")
}

func parseRating(raw string) (Rating, error) {
	data, err := ai.DecodeObject(raw)
	if err != nil {
		return Rating{}, err
	}

	value, ok := data["suitability_score"]
	if !ok {
		value = data["score"]
	}
	score := ai.CoerceFloat(value)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Rating{}, fmt.Errorf("no suitability score in %s", utils.TruncateForLog(raw, defaultMaxLogLength))
	}

	s := int(math.Round(math.Max(0, math.Min(100, score))))
	return Rating{
		Score:  s,
		Reason: ai.CoerceString(data["reason"]),
		Band:   BandOf(s),
	}, nil
}
