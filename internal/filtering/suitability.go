package filtering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/jobs"
)

type suitabilityFilter struct {
	toggle
	config      AIConfig
	brief       jobs.Brief
	excludeFile string
	ratings     map[string][]jobs.Rating
}

// NewSuitability creates the step that asks the configured models how well
// each job suits the agency and drops jobs below the minimum score.
func NewSuitability() Filter {
	return &suitabilityFilter{}
}

func (f *suitabilityFilter) Name() string { return "ai_suitability" }

func (f *suitabilityFilter) Validate(cfg *Config) error {
	f.inactive = ""
	f.config = AIConfig{}
	f.brief = jobs.Brief{}
	f.excludeFile = ""
	if cfg.AI == nil || !cfg.AI.Enabled {
		f.inactive = "ai filtering is not enabled"
		return nil
	}
	f.config = *cfg.AI
	f.excludeFile = strings.TrimSpace(cfg.ExcludeFile)
	f.brief = jobs.Brief{Prompt: f.config.Prompt}
	if cfg.Knowledge.Known() > 0 {
		k := cfg.Knowledge.Clone()
		f.brief.Knowledge = &k
	}
	if f.config.MinimumScore < 0 || f.config.MinimumScore > 100 {
		return fmt.Errorf("minimum score %d is outside 0..100", f.config.MinimumScore)
	}
	return nil
}

func (f *suitabilityFilter) Apply(ctx context.Context, deps Deps, in []jobs.Job) ([]jobs.Job, Step, error) {
	if deps.Scorer == nil {
		return nil, Step{}, errors.New("suitability scorer is required when ai filtering is enabled")
	}

	f.ratings = make(map[string][]jobs.Rating, len(in))

	approved := make([]jobs.Job, 0, len(in))
	var rejected []jobs.Job
	for _, job := range in {
		ratings, err := deps.Scorer.Score(ctx, job, f.config.Models, f.brief)
		if err != nil {
			return nil, Step{}, fmt.Errorf("score job %s: %w", job.ID, err)
		}
		f.ratings[job.ID] = ratings

		score, ok := average(ratings)
		if !ok {
			deps.Logger.Warn("no model could rate job; keeping it", zap.String("job_id", job.ID))
			approved = append(approved, job)
			continue
		}

		if score < f.config.MinimumScore {
			deps.Logger.Info("job rejected by AI",
				zap.String("job_id", job.ID),
				zap.Int("ai_score", score),
			)
			rejected = append(rejected, job)
			continue
		}

		deps.Logger.Debug("job approved by AI", zap.String("job_id", job.ID), zap.Int("ai_score", score))
		approved = append(approved, job)
	}

	if err := f.remember(rejected); err != nil {
		deps.Logger.Warn("could not update exclude file", zap.String("path", f.excludeFile), zap.Error(err))
	}

	return approved, Step{Initial: len(in), Dropped: len(in) - len(approved), Left: len(approved)}, nil
}

// remember appends rejected jobs to the exclude file so later runs skip them
// without asking the models again.
func (f *suitabilityFilter) remember(rejected []jobs.Job) error {
	if f.excludeFile == "" || len(rejected) == 0 {
		return nil
	}
	list, err := jobs.LoadExcludeList(f.excludeFile)
	if err != nil {
		return err
	}
	list.Exclude(jobs.ExcludeActorAI, fmt.Sprintf("suitability below %d", f.config.MinimumScore), rejected...)
	return list.Save(f.excludeFile)
}

func (f *suitabilityFilter) Ratings() map[string][]jobs.Rating {
	if f.ratings == nil {
		return map[string][]jobs.Rating{}
	}
	return f.ratings
}

func (f *suitabilityFilter) Status() Status {
	details := map[string]string{
		"minimum_score": strconv.Itoa(f.config.MinimumScore),
	}
	if len(f.config.Models) > 0 {
		details["models"] = strings.Join(f.config.Models, ",")
	}
	if f.excludeFile != "" {
		details["exclude_file"] = f.excludeFile
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.why(), Details: details}
}

// average is the rounded mean of the ratings that carry a score.
func average(ratings []jobs.Rating) (int, bool) {
	sum, n := 0, 0
	for _, r := range ratings {
		if r.Error != "" {
			continue
		}
		sum += r.Score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return (sum + n/2) / n, true
}
