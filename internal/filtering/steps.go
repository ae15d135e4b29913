package filtering

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

// rule is a filter driven by one part of the knowledge record. build returns
// the predicate for the record, or a reason when the record says nothing
// the rule could filter on.
type rule struct {
	toggle
	name    string
	message string
	build   func(k knowledge.Record) (keep func(jobs.Job) bool, details map[string]string, inactive string)

	keep    func(jobs.Job) bool
	details map[string]string
}

func (r *rule) Name() string { return r.name }

func (r *rule) Validate(cfg *Config) error {
	r.keep, r.details, r.inactive = r.build(cfg.Knowledge)
	return nil
}

func (r *rule) Apply(_ context.Context, deps Deps, in []jobs.Job) ([]jobs.Job, Step, error) {
	kept, dropped := partition(in, r.keep)
	if len(dropped) > 0 {
		deps.Logger.Info(r.message,
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(kept)),
		)
	}
	return kept, Step{Initial: len(in), Dropped: len(dropped), Left: len(kept)}, nil
}

func (r *rule) Status() Status {
	return Status{Name: r.name, Enabled: r.IsEnabled(), Reason: r.why(), Details: r.details}
}

// NewCategory drops jobs in categories the agency said it does not offer.
// Categories the onboarding does not track pass through.
func NewCategory() Filter {
	return &rule{
		name:    "category",
		message: "excluding jobs in declined categories",
		build: func(k knowledge.Record) (func(jobs.Job) bool, map[string]string, string) {
			offered, declined := split(knowledge.Categories, k.Categories)
			if len(offered)+len(declined) == 0 {
				return nil, nil, "categories unknown"
			}
			keep := func(j jobs.Job) bool {
				c, ok := knowledge.ParseCategory(j.Category)
				return !ok || k.Categories[c] != knowledge.False
			}
			return keep, listDetails(offered, declined), ""
		},
	}
}

// NewExperience drops jobs at levels the agency does not take.
func NewExperience() Filter {
	return &rule{
		name:    "experience",
		message: "excluding jobs at declined experience levels",
		build: func(k knowledge.Record) (func(jobs.Job) bool, map[string]string, string) {
			offered, declined := split(knowledge.ExperienceLevels, k.ExperienceLevels)
			if len(offered)+len(declined) == 0 {
				return nil, nil, "experience levels unknown"
			}
			keep := func(j jobs.Job) bool {
				l, ok := knowledge.ParseExperienceLevel(j.ExperienceLevel)
				return !ok || k.ExperienceLevels[l] != knowledge.False
			}
			return keep, listDetails(offered, declined), ""
		},
	}
}

// NewHourlyRate drops hourly jobs whose best rate is below the agency minimum.
func NewHourlyRate() Filter {
	return &rule{
		name:    "hourly_rate",
		message: "excluding jobs paying below the hourly minimum",
		build: func(k knowledge.Record) (func(jobs.Job) bool, map[string]string, string) {
			if k.MinHourlyRate == nil {
				return nil, nil, "minimum hourly rate unknown"
			}
			limit := *k.MinHourlyRate
			keep := func(j jobs.Job) bool {
				top := j.HourlyRateMax
				if top == nil {
					top = j.HourlyRateMin
				}
				return top == nil || *top >= limit
			}
			return keep, minimum("min_hourly_rate", limit), ""
		},
	}
}

// NewFixedPrice drops fixed-price jobs below the agency's minimum budget.
func NewFixedPrice() Filter {
	return threshold("fixed_price", "fixed_price_min", "excluding fixed-price jobs below the minimum budget",
		func(k knowledge.Record) *float64 { return k.FixedPriceMin },
		func(j jobs.Job) *float64 { return j.FixedPrice })
}

// NewClientSpent drops jobs from clients who have spent less than the agency wants.
func NewClientSpent() Filter {
	return threshold("client_spent", "average_client_spent_min", "excluding jobs from low-spend clients",
		func(k knowledge.Record) *float64 { return k.AverageClientSpentMin },
		func(j jobs.Job) *float64 { return j.ClientSpent })
}

// NewWorkload drops jobs with fewer weekly hours than the agency minimum.
func NewWorkload() Filter {
	return threshold("workload", "hourly_workload_min", "excluding jobs with a small weekly workload",
		func(k knowledge.Record) *float64 { return k.HourlyWorkloadMin },
		func(j jobs.Job) *float64 { return j.WorkloadHours })
}

// NewDuration drops jobs shorter than the agency's minimum project length.
func NewDuration() Filter {
	return threshold("duration", "project_duration_min", "excluding short projects",
		func(k knowledge.Record) *float64 { return k.ProjectDurationMin },
		func(j jobs.Job) *float64 { return j.DurationMonths })
}

// NewCompanyClient drops jobs posted by individuals when the agency only works with companies.
func NewCompanyClient() Filter {
	return &rule{
		name:    "company_client",
		message: "excluding jobs from individual clients",
		build: func(k knowledge.Record) (func(jobs.Job) bool, map[string]string, string) {
			switch k.IsCompany {
			case knowledge.Unknown:
				return nil, nil, "client type preference unknown"
			case knowledge.False:
				return nil, nil, "individual clients accepted"
			}
			keep := func(j jobs.Job) bool {
				return j.ClientIsCompany == nil || *j.ClientIsCompany
			}
			return keep, map[string]string{"companies_only": "true"}, ""
		},
	}
}

// threshold builds a rule that drops jobs whose value is known and below the
// record's minimum. Jobs without the value pass.
func threshold(name, detail, message string, limitOf func(knowledge.Record) *float64, valueOf func(jobs.Job) *float64) Filter {
	return &rule{
		name:    name,
		message: message,
		build: func(k knowledge.Record) (func(jobs.Job) bool, map[string]string, string) {
			limit := limitOf(k)
			if limit == nil {
				return nil, nil, strings.ReplaceAll(detail, "_", " ") + " unknown"
			}
			floor := *limit
			keep := func(j jobs.Job) bool {
				v := valueOf(j)
				return v == nil || *v >= floor
			}
			return keep, minimum(detail, floor), ""
		},
	}
}

func split[K ~string](order []K, values map[K]knowledge.Tri) (offered, declined []string) {
	for _, key := range order {
		switch values[key] {
		case knowledge.True:
			offered = append(offered, string(key))
		case knowledge.False:
			declined = append(declined, string(key))
		}
	}
	return offered, declined
}

func listDetails(offered, declined []string) map[string]string {
	details := map[string]string{}
	if len(offered) > 0 {
		details["offered"] = strings.Join(offered, ",")
	}
	if len(declined) > 0 {
		details["declined"] = strings.Join(declined, ",")
	}
	return details
}

func minimum(key string, v float64) map[string]string {
	return map[string]string{key: strconv.FormatFloat(v, 'f', -1, 64)}
}
