package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PageSize is how many jobs one page of the feed holds.
const PageSize = 10

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var timeLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Filters narrows a job search. Empty fields match everything.
type Filters struct {
	Category        string `form:"category" json:"category,omitempty"`
	ExperienceLevel string `form:"experienceLevel" json:"experienceLevel,omitempty"`
	Query           string `form:"q" json:"q,omitempty"`
}

// Store reads job listings.
type Store interface {
	Search(ctx context.Context, f Filters, offset int) ([]Job, error)
	FilterOptions(ctx context.Context) (map[string][]string, error)
	Get(ctx context.Context, id string) (*Job, error)
}

// SQLiteStore keeps jobs in the jobs table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore uses a database opened with storage.Open or storage.OpenMemory.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const jobColumns = `id, title, description, category, experience_level, url,
	hourly_rate_min, hourly_rate_max, fixed_price, client_spent,
	client_is_company, duration_months, workload_hours, posted_at`

// Save inserts or replaces jobs. Jobs without an id get a new one and jobs
// without a posting time are stamped with the current time.
func (s *SQLiteStore) Save(ctx context.Context, jobs ...Job) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			experience_level = excluded.experience_level,
			url = excluded.url,
			hourly_rate_min = excluded.hourly_rate_min,
			hourly_rate_max = excluded.hourly_rate_max,
			fixed_price = excluded.fixed_price,
			client_spent = excluded.client_spent,
			client_is_company = excluded.client_is_company,
			duration_months = excluded.duration_months,
			workload_hours = excluded.workload_hours,
			posted_at = excluded.posted_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range jobs {
		j := jobs[i]
		if strings.TrimSpace(j.Title) == "" {
			return 0, fmt.Errorf("job %d has no title", i)
		}
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		if j.PostedAt.IsZero() {
			j.PostedAt = now
		}

		_, err := stmt.ExecContext(ctx,
			j.ID, j.Title, j.Description, j.Category, j.ExperienceLevel, j.URL,
			nullFloat(j.HourlyRateMin), nullFloat(j.HourlyRateMax), nullFloat(j.FixedPrice), nullFloat(j.ClientSpent),
			nullBool(j.ClientIsCompany), nullFloat(j.DurationMonths), nullFloat(j.WorkloadHours),
			j.PostedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return 0, fmt.Errorf("save job %s: %w", j.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(jobs), nil
}

// Search returns one page of jobs matching f, newest first.
func (s *SQLiteStore) Search(ctx context.Context, f Filters, offset int) ([]Job, error) {
	if offset < 0 {
		offset = 0
	}
	where, args := f.where()
	args = append(args, PageSize, offset)
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY posted_at DESC, id LIMIT ? OFFSET ?`, args...)
}

// List returns every job matching f, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filters) ([]Job, error) {
	where, args := f.where()
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY posted_at DESC, id`, args...)
}

// Count returns how many jobs match f.
func (s *SQLiteStore) Count(ctx context.Context, f Filters) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	jobs, err := s.query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return &jobs[0], nil
}

// FilterOptions lists the values the category and experience level filters can take.
func (s *SQLiteStore) FilterOptions(ctx context.Context) (map[string][]string, error) {
	options := map[string][]string{}
	for key, column := range map[string]string{"category": "category", "experienceLevel": "experience_level"} {
		values, err := s.distinct(ctx, column)
		if err != nil {
			return nil, err
		}
		options[key] = values
	}
	return options, nil
}

func (s *SQLiteStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT `+column+` FROM jobs WHERE `+column+` != '' ORDER BY `+column)
	if err != nil {
		return nil, fmt.Errorf("list %s values: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (f Filters) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if c := strings.TrimSpace(f.Category); c != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, c)
	}
	if l := strings.TrimSpace(f.ExperienceLevel); l != "" {
		clauses = append(clauses, "experience_level = ?")
		args = append(args, l)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var j Job
		var rateMin, rateMax, fixed, spent, months, hours sql.NullFloat64
		var company sql.NullInt64
		var posted sql.NullString
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.Category, &j.ExperienceLevel, &j.URL,
			&rateMin, &rateMax, &fixed, &spent, &company, &months, &hours, &posted); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.HourlyRateMin = floatPtr(rateMin)
		j.HourlyRateMax = floatPtr(rateMax)
		j.FixedPrice = floatPtr(fixed)
		j.ClientSpent = floatPtr(spent)
		j.DurationMonths = floatPtr(months)
		j.WorkloadHours = floatPtr(hours)
		if company.Valid {
			v := company.Int64 != 0
			j.ClientIsCompany = &v
		}
		if posted.Valid {
			t, err := parseTime(posted.String)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", j.ID, err)
			}
			j.PostedAt = t
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognised posted_at " + s)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullBool(p *bool) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	if *p {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
