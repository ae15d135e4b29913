package filtering

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

func boolPtr(v bool) *bool { return &v }

func feed() []jobs.Job {
	return []jobs.Job{
		{ID: "web-senior", Title: "Marketplace", Category: "Web Development", ExperienceLevel: "Senior Level",
			HourlyRateMin: knowledge.Float(50), HourlyRateMax: knowledge.Float(80), ClientSpent: knowledge.Float(20000),
			ClientIsCompany: boolPtr(true), DurationMonths: knowledge.Float(6), WorkloadHours: knowledge.Float(30)},
		{ID: "mobile", Title: "iOS app", Category: "Mobile Development", ExperienceLevel: "Mid Level",
			HourlyRateMax: knowledge.Float(90)},
		{ID: "cheap", Title: "Landing page", Category: "Web Development", ExperienceLevel: "Entry Level",
			HourlyRateMin: knowledge.Float(10), HourlyRateMax: knowledge.Float(20)},
		{ID: "fixed", Title: "Shopify fixes", Category: "Web Development", FixedPrice: knowledge.Float(300),
			ClientSpent: knowledge.Float(500), ClientIsCompany: boolPtr(false), DurationMonths: knowledge.Float(0.5)},
		{ID: "design", Title: "Logo", Category: "Design"},
	}
}

func ids(js []jobs.Job) []string {
	out := make([]string, 0, len(js))
	for _, j := range js {
		out = append(out, j.ID)
	}
	return out
}

func TestRunWithUnknownKnowledgeKeepsEverything(t *testing.T) {
	res, err := Run(context.Background(), &Config{Knowledge: knowledge.Default()}, Deps{}, Default(), feed())
	require.NoError(t, err)
	assert.Equal(t, ids(feed()), ids(res.Jobs))
	assert.Empty(t, res.Steps)
}

func TestRunAppliesKnownPreferences(t *testing.T) {
	k := knowledge.Default()
	k.Categories[knowledge.WebDevelopment] = knowledge.True
	k.Categories[knowledge.MobileDevelopment] = knowledge.False
	k.MinHourlyRate = knowledge.Float(50)

	core, logs := observer.New(zapcore.InfoLevel)
	steps := Default()
	res, err := Run(context.Background(), &Config{Knowledge: k}, Deps{Logger: zap.New(core)}, steps, feed())
	require.NoError(t, err)

	assert.Equal(t, []string{"web-senior", "fixed", "design"}, ids(res.Jobs))
	assert.Equal(t, Step{Initial: 5, Dropped: 1, Left: 4}, res.Steps["category"])
	assert.Equal(t, Step{Initial: 4, Dropped: 1, Left: 3}, res.Steps["hourly_rate"])
	assert.NotContains(t, res.Steps, "duration")
	assert.Equal(t, 1, logs.FilterMessage("excluding jobs in declined categories").Len())

	statuses := map[string]Status{}
	for _, s := range Describe(steps) {
		statuses[s.Name] = s
	}
	assert.True(t, statuses["category"].Enabled)
	assert.Equal(t, "Web Development", statuses["category"].Details["offered"])
	assert.Equal(t, "50", statuses["hourly_rate"].Details["min_hourly_rate"])
	assert.False(t, statuses["duration"].Enabled)
	assert.Equal(t, "project duration min unknown", statuses["duration"].Reason)
}

func TestThresholdSteps(t *testing.T) {
	cases := []struct {
		name string
		set  func(*knowledge.Record)
		want []string
	}{
		{"fixed_price", func(k *knowledge.Record) { k.FixedPriceMin = knowledge.Float(1000) }, []string{"web-senior", "mobile", "cheap", "design"}},
		{"client_spent", func(k *knowledge.Record) { k.AverageClientSpentMin = knowledge.Float(1000) }, []string{"web-senior", "mobile", "cheap", "design"}},
		{"workload", func(k *knowledge.Record) { k.HourlyWorkloadMin = knowledge.Float(40) }, []string{"mobile", "cheap", "fixed", "design"}},
		{"duration", func(k *knowledge.Record) { k.ProjectDurationMin = knowledge.Float(1) }, []string{"web-senior", "mobile", "cheap", "design"}},
		{"company_client", func(k *knowledge.Record) { k.IsCompany = knowledge.True }, []string{"web-senior", "mobile", "cheap", "design"}},
		{"experience", func(k *knowledge.Record) { k.ExperienceLevels[knowledge.EntryLevel] = knowledge.False }, []string{"web-senior", "mobile", "fixed", "design"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			k := knowledge.Default()
			tc.set(&k)

			res, err := Run(context.Background(), &Config{Knowledge: k}, Deps{}, Default(), feed())
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(res.Jobs))
			assert.Len(t, res.Steps, 1)
			assert.Contains(t, res.Steps, tc.name)
		})
	}
}

func TestIndividualClientsAcceptedDisablesCompanyStep(t *testing.T) {
	k := knowledge.Default()
	k.IsCompany = knowledge.False

	steps := []Filter{NewCompanyClient()}
	res, err := Run(context.Background(), &Config{Knowledge: k}, Deps{}, steps, feed())
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 5)
	assert.Equal(t, "individual clients accepted", Describe(steps)[0].Reason)
}

func TestDisableByNameSurvivesValidate(t *testing.T) {
	k := knowledge.Default()
	k.MinHourlyRate = knowledge.Float(500)

	steps := Default()
	DisableByName(steps, "hourly_rate", "requested")

	res, err := Run(context.Background(), &Config{Knowledge: k}, Deps{}, steps, feed())
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 5)

	for _, s := range Describe(steps) {
		if s.Name == "hourly_rate" {
			assert.False(t, s.Enabled)
			assert.Equal(t, "requested", s.Reason)
		}
	}
}

func TestExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	list := &jobs.ExcludeList{}
	list.Exclude(jobs.ExcludeActorUser, "seen", jobs.Job{ID: "mobile"}, jobs.Job{ID: "design"})
	require.NoError(t, list.Save(path))

	res, err := Run(context.Background(), &Config{Knowledge: knowledge.Default(), ExcludeFile: path}, Deps{}, Default(), feed())
	require.NoError(t, err)
	assert.Equal(t, []string{"web-senior", "cheap", "fixed"}, ids(res.Jobs))
	assert.Equal(t, Step{Initial: 5, Dropped: 2, Left: 3}, res.Steps["exclude_file"])

	missing := filepath.Join(t.TempDir(), "none.json")
	res, err = Run(context.Background(), &Config{Knowledge: knowledge.Default(), ExcludeFile: missing}, Deps{}, Default(), feed())
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 5)
}

type scorerFunc func(ctx context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Rating, error)

func (f scorerFunc) Score(ctx context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Rating, error) {
	return f(ctx, job, models, brief)
}

func TestSuitabilityStep(t *testing.T) {
	scores := map[string][]jobs.Rating{
		"web-senior": {{Model: "a", Score: 90}, {Model: "b", Score: 71}},
		"mobile":     {{Model: "a", Score: 30}, {Model: "b", Error: "rate limited"}},
		"cheap":      {{Model: "a", Error: "boom"}, {Model: "b", Error: "boom"}},
	}
	var briefs []jobs.Brief
	scorer := scorerFunc(func(_ context.Context, job jobs.Job, models []string, brief jobs.Brief) ([]jobs.Rating, error) {
		assert.Equal(t, []string{"a", "b"}, models)
		briefs = append(briefs, brief)
		return scores[job.ID], nil
	})

	k := knowledge.Default()
	k.ProjectDurationMin = knowledge.Float(3)
	path := filepath.Join(t.TempDir(), "excluded.json")
	cfg := &Config{
		Knowledge:   k,
		ExcludeFile: path,
		AI:          &AIConfig{Enabled: true, Models: []string{"a", "b"}, MinimumScore: 50, Prompt: "Agency"},
	}

	in := feed()[:3]
	res, err := Run(context.Background(), cfg, Deps{Scorer: scorer}, []Filter{NewExcludeFile(), NewSuitability()}, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"web-senior", "cheap"}, ids(res.Jobs), "unrated jobs are kept")
	assert.Equal(t, scores["mobile"], res.Ratings["mobile"])
	require.Len(t, briefs, 3)
	assert.Equal(t, "Agency", briefs[0].Prompt)
	require.NotNil(t, briefs[0].Knowledge)
	assert.Equal(t, 3.0, *briefs[0].Knowledge.ProjectDurationMin)

	list, err := jobs.LoadExcludeList(path)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "mobile", list.Items[0].ID)
	assert.Equal(t, jobs.ExcludeActorAI, list.Items[0].Actor)

	// the rejected job no longer reaches the models
	briefs = nil
	res, err = Run(context.Background(), cfg, Deps{Scorer: scorer}, []Filter{NewExcludeFile(), NewSuitability()}, in)
	require.NoError(t, err)
	assert.Len(t, briefs, 2)
	assert.Equal(t, []string{"web-senior", "cheap"}, ids(res.Jobs))
}

func TestSuitabilityErrors(t *testing.T) {
	cfg := &Config{Knowledge: knowledge.Default(), AI: &AIConfig{Enabled: true, MinimumScore: 50}}

	_, err := Run(context.Background(), cfg, Deps{}, []Filter{NewSuitability()}, feed())
	assert.ErrorContains(t, err, "scorer is required")

	boom := errors.New("unknown model")
	failing := scorerFunc(func(context.Context, jobs.Job, []string, jobs.Brief) ([]jobs.Rating, error) { return nil, boom })
	_, err = Run(context.Background(), cfg, Deps{Scorer: failing}, []Filter{NewSuitability()}, feed())
	assert.ErrorIs(t, err, boom)

	cfg.AI.MinimumScore = 101
	_, err = Run(context.Background(), cfg, Deps{Scorer: failing}, []Filter{NewSuitability()}, feed())
	assert.ErrorContains(t, err, "outside 0..100")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, nil, Deps{}, Default(), feed())
	assert.ErrorIs(t, err, context.Canceled)
}
