package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/jobs"
)

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes jobs listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = strings.TrimSpace(cfg.ExcludeFile)
	f.inactive = ""
	if f.path == "" {
		f.inactive = "no exclude file configured"
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, in []jobs.Job) ([]jobs.Job, Step, error) {
	list, err := jobs.LoadExcludeList(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded jobs from file: %w", err)
	}

	ids := list.IDs()
	kept, removed := partition(in, func(j jobs.Job) bool {
		_, excluded := ids[j.ID]
		return !excluded
	})
	if len(removed) > 0 {
		deps.Logger.Info("excluding jobs based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_jobs", removed),
			zap.Int("jobs_left", len(kept)),
		)
	}

	return kept, Step{Initial: len(in), Dropped: len(removed), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.why(), Details: details}
}
