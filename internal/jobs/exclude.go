package jobs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// Actors that can exclude a job from the feed.
const (
	ExcludeActorUser = "user"
	ExcludeActorAI   = "ai"
)

// Excluded is a job that must not show up in the feed again.
type Excluded struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	ExcludedAt time.Time `json:"excludedAt"`
}

type ExcludeList struct {
	Items []Excluded `json:"items"`
}

// Exclude records jobs in the list.
func (l *ExcludeList) Exclude(actor, reason string, jobs ...Job) {
	now := time.Now().UTC()
	for _, j := range jobs {
		l.Items = append(l.Items, Excluded{
			ID:         j.ID,
			URL:        j.URL,
			Title:      j.Title,
			Actor:      actor,
			Reason:     reason,
			ExcludedAt: now,
		})
	}
}

// IDs returns the set of excluded job ids.
func (l *ExcludeList) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Items))
	for _, item := range l.Items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

// LoadExcludeList reads the list at path. A missing or empty file is an empty list.
func LoadExcludeList(path string) (*ExcludeList, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludeList{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &ExcludeList{}, nil
	}

	var list ExcludeList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Save writes the list to path.
func (l *ExcludeList) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
