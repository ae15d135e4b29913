// Package jobs keeps the job listings an agency's feed is built from and
// rates them against the agency with one or more models.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// Job is an Upwork job post. Optional numbers are nil when the post does not say.
type Job struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	ExperienceLevel string    `json:"experienceLevel"`
	URL             string    `json:"url,omitempty"`
	HourlyRateMin   *float64  `json:"hourlyRateMin,omitempty"`
	HourlyRateMax   *float64  `json:"hourlyRateMax,omitempty"`
	FixedPrice      *float64  `json:"fixedPrice,omitempty"`
	ClientSpent     *float64  `json:"clientSpent,omitempty"`
	ClientIsCompany *bool     `json:"clientIsCompany,omitempty"`
	DurationMonths  *float64  `json:"durationMonths,omitempty"`
	WorkloadHours   *float64  `json:"workloadHours,omitempty"`
	PostedAt        time.Time `json:"postedAt"`
}

// Hourly reports whether the job pays by the hour.
func (j Job) Hourly() bool {
	return j.HourlyRateMin != nil || j.HourlyRateMax != nil
}

// Brief is the text a model sees for a job.
func (j Job) Brief() string {
	return fmt.Sprintf("Job Title: %s\n\nJob Description: %s", strings.TrimSpace(j.Title), strings.TrimSpace(j.Description))
}

// LoadFile reads jobs from a JSON file holding either an array of jobs or
// an object with a "jobs" array.
func LoadFile(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Jobs []Job `json:"jobs"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
		}
		return wrapped.Jobs, nil
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	return jobs, nil
}
