package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/storage"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func boolPtr(v bool) *bool { return &v }

func seedJobs(t *testing.T, s *SQLiteStore, n int, category string) {
	t.Helper()
	base := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	jobs := make([]Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, Job{
			ID:              fmt.Sprintf("%s-%02d", category, i),
			Title:           fmt.Sprintf("%s job %d", category, i),
			Description:     "Build an MVP",
			Category:        category,
			ExperienceLevel: string(knowledge.MidLevel),
			PostedAt:        base.Add(time.Duration(i) * time.Hour),
		})
	}
	_, err := s.Save(context.Background(), jobs...)
	require.NoError(t, err)
}

func TestSaveAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	posted := time.Date(2024, 12, 3, 9, 30, 0, 0, time.UTC)
	job := Job{
		ID:              "job-1",
		Title:           "React Native app for a sports network",
		Description:     "Ratings and social features",
		Category:        string(knowledge.MobileDevelopment),
		ExperienceLevel: string(knowledge.SeniorLevel),
		HourlyRateMin:   knowledge.Float(40),
		HourlyRateMax:   knowledge.Float(70),
		ClientSpent:     knowledge.Float(25000),
		ClientIsCompany: boolPtr(false),
		DurationMonths:  knowledge.Float(6),
		WorkloadHours:   knowledge.Float(30),
		PostedAt:        posted,
	}

	n, err := s.Save(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job, *got)
	assert.True(t, got.Hourly())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAssignsIDAndUpserts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, Job{Title: "No id"})
	require.NoError(t, err)

	all, err := s.List(ctx, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].PostedAt.IsZero())

	updated := all[0]
	updated.Title = "Renamed"
	_, err = s.Save(ctx, updated)
	require.NoError(t, err)

	all, err = s.List(ctx, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Renamed", all[0].Title)

	_, err = s.Save(ctx, Job{ID: "x"})
	assert.Error(t, err)
}

func TestSearchPaginates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedJobs(t, s, 12, string(knowledge.WebDevelopment))
	seedJobs(t, s, 3, string(knowledge.MobileDevelopment))

	first, err := s.Search(ctx, Filters{Category: string(knowledge.WebDevelopment)}, 0)
	require.NoError(t, err)
	require.Len(t, first, PageSize)
	assert.Equal(t, "Web Development-11", first[0].ID, "newest first")

	second, err := s.Search(ctx, Filters{Category: string(knowledge.WebDevelopment)}, PageSize)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "Web Development-00", second[1].ID)

	total, err := s.Count(ctx, Filters{})
	require.NoError(t, err)
	assert.Equal(t, 15, total)

	found, err := s.Search(ctx, Filters{Query: "Mobile Development job 1"}, -5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Mobile Development-01", found[0].ID)
}

func TestFilterOptions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedJobs(t, s, 2, string(knowledge.WebDevelopment))
	seedJobs(t, s, 1, string(knowledge.MobileDevelopment))
	_, err := s.Save(ctx, Job{ID: "blank", Title: "Uncategorised", ExperienceLevel: string(knowledge.EntryLevel)})
	require.NoError(t, err)

	options, err := s.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mobile Development", "Web Development"}, options["category"])
	assert.Equal(t, []string{"Entry Level", "Mid Level"}, options["experienceLevel"])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	array := filepath.Join(dir, "array.json")
	require.NoError(t, os.WriteFile(array, []byte(`[{"id":"a","title":"One","hourlyRateMin":30}]`), 0o600))
	jobs, err := LoadFile(array)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 30.0, *jobs[0].HourlyRateMin)

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"jobs":[{"title":"One"},{"title":"Two"}]}`), 0o600))
	jobs, err = LoadFile(wrapped)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`[{`), 0o600))
	_, err = LoadFile(broken)
	assert.Error(t, err)
}
