// Package filtering narrows a job feed down to what an agency said it wants.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

// Filter represents a single filtering step applied to jobs.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	// Validate configures the step from cfg. A step may turn itself off when
	// cfg lacks what it filters on.
	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, in []jobs.Job) ([]jobs.Job, Step, error)
}

// Scorer rates a job with several models. *jobs.Scorer implements it.
type Scorer interface {
	Score(ctx context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Rating, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
	Scorer Scorer
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains the settings consumed by the filters.
type Config struct {
	Knowledge   knowledge.Record
	ExcludeFile string
	AI          *AIConfig
}

// AIConfig controls the suitability step.
type AIConfig struct {
	Enabled      bool
	Models       []string
	MinimumScore int
	Prompt       string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Result is what a run leaves over.
type Result struct {
	Jobs    []jobs.Job
	Ratings map[string][]jobs.Rating
	Steps   map[string]Step
}

type statusProvider interface {
	Status() Status
}

// Default returns every step in the order they run.
func Default() []Filter {
	return []Filter{
		NewExcludeFile(),
		NewCategory(),
		NewExperience(),
		NewHourlyRate(),
		NewFixedPrice(),
		NewClientSpent(),
		NewWorkload(),
		NewDuration(),
		NewCompanyClient(),
		NewSuitability(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run validates every step against cfg and then applies the enabled ones in order.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, in []jobs.Job) (*Result, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Knowledge: knowledge.Default()}
	}

	for _, step := range steps {
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	res := &Result{
		Jobs:    in,
		Ratings: map[string][]jobs.Rating{},
		Steps:   map[string]Step{},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !step.IsEnabled() {
			deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, res.Jobs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		res.Jobs = next
		res.Steps[step.Name()] = info

		if collector, ok := step.(interface {
			Ratings() map[string][]jobs.Rating
		}); ok {
			for id, ratings := range collector.Ratings() {
				res.Ratings[id] = ratings
			}
		}
	}

	return res, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// toggle carries the disabled state shared by every step. A step switched off
// with Disable stays off; one switched off by Validate is re-evaluated on the
// next run.
type toggle struct {
	disabled bool
	reason   string
	inactive string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled && t.inactive == "" }

func (t *toggle) why() string {
	if t.disabled {
		return t.reason
	}
	return t.inactive
}

// partition keeps the jobs for which keep returns true and reports the ids it dropped.
func partition(in []jobs.Job, keep func(jobs.Job) bool) ([]jobs.Job, []string) {
	kept := make([]jobs.Job, 0, len(in))
	var dropped []string
	for _, j := range in {
		if keep(j) {
			kept = append(kept, j)
			continue
		}
		dropped = append(dropped, j.ID)
	}
	return kept, dropped
}
